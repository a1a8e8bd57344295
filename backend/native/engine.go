// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build darwin || linux || ios || android

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/gogpu/plugview"
	"github.com/gogpu/plugview/internal/logx"
)

// Status codes shared with the C side. Every entry point that can fail
// returns one of these.
const (
	statusOK         = 0
	statusNoInstance = 1
	statusBadArg     = 2
)

// ErrLoad indicates the engine library could not be opened or lacks a
// required entry point.
var ErrLoad = errors.New("native: engine library not loadable")

var logh = logx.NewHolder()

// SetLogger sets the package logger. Passing nil restores the no-op logger.
func SetLogger(l *slog.Logger) { logh.Set(l) }

func logger() *slog.Logger { return logh.Get() }

// Engine adapts a dynamically loaded plugin engine to plugview.Engine.
// Each method forwards to the matching plugview_* symbol; the trampolines
// are resolved once at Load and are safe for concurrent use. Close must
// not race any other call.
type Engine struct {
	mu     sync.Mutex
	handle uintptr
	path   string

	fnBeginInstantiate func(displayID, contentIndex int32)
	fnInstantiate      func(contentIndex, displayID int32, root uint32) int32
	fnDestroy          func(contentIndex int32)
	fnPumpIdle         func() int32
	fnRequestFrame     func(displayID int32)
	fnWidgetAt         func(displayID, x, y int32) int32
	fnNaturalSize      func(contentIndex, displayID int32, wOut, hOut uintptr) int32
	fnUIScale          func(displayID int32) float64
	fnDeliverFile      func(contentIndex int32, propertyURI, path string) int32
	fnNotifyParameter  func(contentIndex int32, symbol string, value float32) int32
	fnVersion          func() string
}

var _ plugview.Engine = (*Engine)(nil)

// Load opens the engine shared library and resolves its plugview entry
// points. The path is passed to dlopen as-is, so a bare soname uses the
// system search path. Symbols bind eagerly; a library missing a required
// entry point fails here rather than at first call.
func Load(path string) (*Engine, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	e := &Engine{handle: handle, path: path}
	if err := e.register(); err != nil {
		purego.Dlclose(handle)
		return nil, err
	}
	logger().Info("native: engine library loaded", "path", path, "version", e.Version())
	return e, nil
}

// register resolves all entry points. RegisterLibFunc panics on a missing
// symbol; the recover turns that into a load error naming the library.
func (e *Engine) register() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrLoad, e.path, r)
		}
	}()
	purego.RegisterLibFunc(&e.fnBeginInstantiate, e.handle, "plugview_begin_instantiate")
	purego.RegisterLibFunc(&e.fnInstantiate, e.handle, "plugview_instantiate")
	purego.RegisterLibFunc(&e.fnDestroy, e.handle, "plugview_destroy")
	purego.RegisterLibFunc(&e.fnPumpIdle, e.handle, "plugview_pump_idle")
	purego.RegisterLibFunc(&e.fnRequestFrame, e.handle, "plugview_request_frame")
	purego.RegisterLibFunc(&e.fnWidgetAt, e.handle, "plugview_widget_at")
	purego.RegisterLibFunc(&e.fnNaturalSize, e.handle, "plugview_natural_size")
	purego.RegisterLibFunc(&e.fnUIScale, e.handle, "plugview_ui_scale")
	purego.RegisterLibFunc(&e.fnDeliverFile, e.handle, "plugview_deliver_file")
	purego.RegisterLibFunc(&e.fnNotifyParameter, e.handle, "plugview_notify_parameter")

	// Older engines predate the version export.
	e.registerOptional(&e.fnVersion, "plugview_version")
	return nil
}

// registerOptional resolves a symbol that the library may not export,
// leaving the trampoline nil when it is absent.
func (e *Engine) registerOptional(fn any, name string) {
	defer func() {
		if recover() != nil {
			logger().Debug("native: optional symbol absent", "symbol", name)
		}
	}()
	purego.RegisterLibFunc(fn, e.handle, name)
}

// SetLogger propagates the host logger to this package.
func (e *Engine) SetLogger(l *slog.Logger) { SetLogger(l) }

// Path returns the library path the engine was loaded from.
func (e *Engine) Path() string { return e.path }

// Version reports the engine's own version string. Empty when the library
// does not export plugview_version.
func (e *Engine) Version() string {
	if e.fnVersion == nil {
		return ""
	}
	return e.fnVersion()
}

// BeginInstantiate marks an instantiation as in flight on the engine side
// before any worker is scheduled.
func (e *Engine) BeginInstantiate(displayID, contentIndex int) {
	e.fnBeginInstantiate(int32(displayID), int32(contentIndex))
}

// Instantiate creates the hosted UI inside the display, parented to root.
func (e *Engine) Instantiate(contentIndex, displayID int, root uint32) error {
	rc := e.fnInstantiate(int32(contentIndex), int32(displayID), root)
	return statusErr(fmt.Sprintf("instantiate content %d in display %d", contentIndex, displayID), rc)
}

// Destroy tears down the hosted UI for the content item. The engine side
// treats an already-gone instance as a no-op, so Destroy has no status.
func (e *Engine) Destroy(contentIndex int) {
	e.fnDestroy(int32(contentIndex))
}

// PumpIdle drives protocol event processing for all live instances and
// reports whether any instance still has work pending.
func (e *Engine) PumpIdle() bool { return e.fnPumpIdle() != 0 }

// RequestFrame asks the display's render path for a repaint.
func (e *Engine) RequestFrame(displayID int) { e.fnRequestFrame(int32(displayID)) }

// HitTest reports whether the display coordinate lands on an interactive
// widget of the hosted UI.
func (e *Engine) HitTest(displayID, x, y int) bool {
	return e.fnWidgetAt(int32(displayID), int32(x), int32(y)) != 0
}

// NaturalSize returns the hosted UI's preferred content size once
// instantiation has completed. ok is false before that.
func (e *Engine) NaturalSize(contentIndex, displayID int) (w, h int, ok bool) {
	var cw, ch uint32
	rc := e.fnNaturalSize(int32(contentIndex), int32(displayID),
		uintptr(unsafe.Pointer(&cw)), uintptr(unsafe.Pointer(&ch)))
	if rc != statusOK || cw == 0 || ch == 0 {
		return 0, 0, false
	}
	return int(cw), int(ch), true
}

// ScaleFactor returns the UI scale the hosted toolkit selected for the
// display. Engines that report nothing useful yield 1.0.
func (e *Engine) ScaleFactor(displayID int) float64 {
	s := e.fnUIScale(int32(displayID))
	if s <= 0 {
		return 1.0
	}
	return s
}

// DeliverFile pushes an externally obtained file into an instantiated
// hosted UI, keyed by the toolkit-level property identifier.
func (e *Engine) DeliverFile(contentIndex int, propertyURI, path string) error {
	rc := e.fnDeliverFile(int32(contentIndex), propertyURI, path)
	return statusErr(fmt.Sprintf("deliver file to content %d", contentIndex), rc)
}

// NotifyParameter informs the hosted UI that a parameter changed outside
// it so it can repaint its controls.
func (e *Engine) NotifyParameter(contentIndex int, symbol string, value float32) error {
	rc := e.fnNotifyParameter(int32(contentIndex), symbol, value)
	return statusErr(fmt.Sprintf("notify parameter %q on content %d", symbol, contentIndex), rc)
}

// Close unloads the engine library. Call it only after the Manager using
// this Engine has shut down; the trampolines are invalid once the library
// is gone. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil
	}
	handle := e.handle
	e.handle = 0
	if err := purego.Dlclose(handle); err != nil {
		return fmt.Errorf("native: close %s: %w", e.path, err)
	}
	logger().Debug("native: engine library closed", "path", e.path)
	return nil
}

// statusErr maps an engine status code to a Go error. statusNoInstance
// wraps plugview.ErrNoInstance so the same errors.Is check covers both
// host-side and engine-side gating.
func statusErr(op string, rc int32) error {
	switch rc {
	case statusOK:
		return nil
	case statusNoInstance:
		return fmt.Errorf("native: %s: %w", op, plugview.ErrNoInstance)
	case statusBadArg:
		return fmt.Errorf("native: %s: rejected by engine (bad argument)", op)
	default:
		return fmt.Errorf("native: %s: engine status %d", op, rc)
	}
}
