package plugview

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger enabled at %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Error("Logger() did not return the logger set via SetLogger")
	}
	Logger().Info("test message", "key", "value")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set the nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

// loggedEngine records the logger a Manager hands to its engine.
type loggedEngine struct {
	*fakeEngine

	mu  sync.Mutex
	got *slog.Logger
}

func (e *loggedEngine) SetLogger(l *slog.Logger) {
	e.mu.Lock()
	e.got = l
	e.mu.Unlock()
}

func (e *loggedEngine) logger() *slog.Logger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.got
}

func TestManagerPropagatesLoggerToCollaborators(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	seq := &seqLog{}
	eng := &loggedEngine{fakeEngine: newFakeEngine(seq)}
	drv := newFakeDriver(seq)
	mgr, err := NewManager(eng, drv, &cpuDevice{},
		WithSettleDelay(2*time.Millisecond),
		WithReleaseCooldown(2*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Close)

	if eng.logger() != custom {
		t.Error("NewManager did not hand the active logger to the engine")
	}

	second := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	mgr.SetLogger(second)
	if eng.logger() != second {
		t.Error("Manager.SetLogger did not re-propagate to the engine")
	}
}

func TestSetLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	const goroutines = 50
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := Logger()
			if l == nil {
				t.Error("Logger() returned nil during concurrent access")
			}
			l.Debug("concurrent read")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetLogger(nil)
		}()
	}
	wg.Wait()
}
