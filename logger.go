package plugview

import (
	"log/slog"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/display"
	"github.com/gogpu/plugview/input"
	"github.com/gogpu/plugview/internal/logx"
)

// logh stores the active logger. Accessed atomically so that SetLogger
// can be called concurrently with logging from any goroutine.
var logh = logx.NewHolder()

// SetLogger configures the logger for plugview and all its sub-packages.
// By default, plugview produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to disable logging (restore default silent
// behavior).
//
// Log levels used by plugview:
//   - [slog.LevelDebug]: per-frame detail (buffer sizes, pump wakeups,
//     pointer queue drains)
//   - [slog.LevelInfo]: lifecycle events (session allocated, UI
//     instantiated, surface attached)
//   - [slog.LevelWarn]: non-fatal issues (frame skipped, pool exhausted,
//     destroy of an already-gone instance)
//   - [slog.LevelError]: attach and instantiation failures
//
// Example:
//
//	// Enable info-level logging to stderr:
//	plugview.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	plugview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logh.Set(l)
	display.SetLogger(l)
	bridge.SetLogger(l)
	input.SetLogger(l)
}

// Logger returns the current logger used by plugview.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logh.Get()
}

// loggerSetter is implemented by collaborators (engines, GPU devices)
// that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a collaborator if it implements
// the loggerSetter interface, so injected backends share the plugview
// logger configuration without a package dependency.
func propagateLogger(v any, l *slog.Logger) {
	if ls, ok := v.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
