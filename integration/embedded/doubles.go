// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package embedded

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/display"
)

// Journal records lifecycle calls across doubles in arrival order. All
// doubles created from the same Harness share one Journal, which is what
// makes cross-component ordering assertions possible.
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Record appends one event.
func (j *Journal) Record(format string, args ...any) {
	j.mu.Lock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

// Snapshot returns a copy of all events recorded so far.
func (j *Journal) Snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// Index returns the position of the first matching event, or -1.
func (j *Journal) Index(event string) int {
	for i, e := range j.Snapshot() {
		if e == event {
			return i
		}
	}
	return -1
}

// StubEngine is an in-process plugview.Engine. Instantiation always
// succeeds and completes immediately; hit testing is delegated to an
// optional function. The zero value is not usable, construct with
// NewStubEngine.
type StubEngine struct {
	journal *Journal

	mu      sync.Mutex
	natW    int
	natH    int
	scale   float64
	hitFunc func(displayID, x, y int) bool
	live    map[int]bool
	frames  map[int]int
	files   []string
	params  []string
}

// NewStubEngine returns an engine whose hosted UIs report the given
// natural size.
func NewStubEngine(journal *Journal, natW, natH int) *StubEngine {
	return &StubEngine{
		journal: journal,
		natW:    natW,
		natH:    natH,
		scale:   1,
		live:    make(map[int]bool),
		frames:  make(map[int]int),
	}
}

// SetHitFunc installs the widget hit predicate. A nil predicate reports
// no interactive widgets anywhere.
func (e *StubEngine) SetHitFunc(fn func(displayID, x, y int) bool) {
	e.mu.Lock()
	e.hitFunc = fn
	e.mu.Unlock()
}

// SetScale changes the reported UI scale for all displays.
func (e *StubEngine) SetScale(s float64) {
	e.mu.Lock()
	e.scale = s
	e.mu.Unlock()
}

// Frames returns how many repaints the given display has been asked for.
func (e *StubEngine) Frames(displayID int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames[displayID]
}

// Files returns the delivered file notifications as "content uri path".
func (e *StubEngine) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.files...)
}

// Params returns the parameter notifications as "content symbol".
func (e *StubEngine) Params() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.params...)
}

func (e *StubEngine) BeginInstantiate(displayID, contentIndex int) {
	e.journal.Record("begin %d", contentIndex)
}

func (e *StubEngine) Instantiate(contentIndex, displayID int, root uint32) error {
	e.mu.Lock()
	e.live[contentIndex] = true
	e.mu.Unlock()
	e.journal.Record("instantiate %d", contentIndex)
	return nil
}

func (e *StubEngine) Destroy(contentIndex int) {
	e.mu.Lock()
	delete(e.live, contentIndex)
	e.mu.Unlock()
	e.journal.Record("destroy %d", contentIndex)
}

func (e *StubEngine) PumpIdle() bool { return false }

func (e *StubEngine) RequestFrame(displayID int) {
	e.mu.Lock()
	e.frames[displayID]++
	e.mu.Unlock()
}

func (e *StubEngine) HitTest(displayID, x, y int) bool {
	e.mu.Lock()
	fn := e.hitFunc
	e.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn(displayID, x, y)
}

func (e *StubEngine) NaturalSize(contentIndex, displayID int) (int, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live[contentIndex] {
		return 0, 0, false
	}
	return e.natW, e.natH, true
}

func (e *StubEngine) ScaleFactor(displayID int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scale
}

func (e *StubEngine) DeliverFile(contentIndex int, propertyURI, path string) error {
	e.mu.Lock()
	e.files = append(e.files, fmt.Sprintf("%d %s %s", contentIndex, propertyURI, path))
	e.mu.Unlock()
	return nil
}

func (e *StubEngine) NotifyParameter(contentIndex int, symbol string, value float32) error {
	e.mu.Lock()
	e.params = append(e.params, fmt.Sprintf("%d %s", contentIndex, symbol))
	e.mu.Unlock()
	return nil
}

// MemDrawable is an in-memory blit target. It validates frame geometry
// the way a real server-side window would and keeps the sizes of all
// frames it received.
type MemDrawable struct {
	mu   sync.Mutex
	w, h int
	puts [][2]int
}

func (d *MemDrawable) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w, d.h
}

func (d *MemDrawable) setSize(w, h int) {
	d.mu.Lock()
	d.w, d.h = w, h
	d.mu.Unlock()
}

func (d *MemDrawable) PutImage(pix []byte, w, h int) error {
	if len(pix) != w*h*4 {
		return fmt.Errorf("embedded: put %dx%d with %d bytes", w, h, len(pix))
	}
	d.mu.Lock()
	d.puts = append(d.puts, [2]int{w, h})
	d.mu.Unlock()
	return nil
}

func (d *MemDrawable) Flush() error { return nil }

// PutCount returns how many full frames were transferred.
func (d *MemDrawable) PutCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.puts)
}

// PutSizes returns the geometry of every transferred frame, in order.
func (d *MemDrawable) PutSizes() [][2]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][2]int(nil), d.puts...)
}

// LastPut returns the geometry of the most recent frame.
func (d *MemDrawable) LastPut() ([2]int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.puts) == 0 {
		return [2]int{}, false
	}
	return d.puts[len(d.puts)-1], true
}

// MemConn is an in-memory protocol connection. Bind hands out a fixed
// root window handle; pointer events and resizes are journaled for
// inspection.
type MemConn struct {
	journal   *Journal
	displayID int
	draw      *MemDrawable

	mu      sync.Mutex
	binds   int
	events  []display.PointerEvent
	resizes [][2]int
	exposes int
	closed  bool
}

// RootHandle is the window handle every MemConn returns from Bind.
const RootHandle uint32 = 0x2a

func (c *MemConn) Bind(drawable uintptr, w, h int) (uint32, error) {
	c.mu.Lock()
	c.binds++
	c.mu.Unlock()
	c.draw.setSize(w, h)
	return RootHandle, nil
}

func (c *MemConn) NotifyResize(w, h int) {
	c.draw.setSize(w, h)
	c.mu.Lock()
	c.resizes = append(c.resizes, [2]int{w, h})
	c.mu.Unlock()
}

func (c *MemConn) InjectPointer(ev display.PointerEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *MemConn) ExposeAll() {
	c.mu.Lock()
	c.exposes++
	c.mu.Unlock()
}

func (c *MemConn) Drawable() display.Drawable { return c.draw }

func (c *MemConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.journal.Record("close %d", c.displayID)
	return nil
}

// BindCount returns how many times the host drawable was bound.
func (c *MemConn) BindCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binds
}

// Events returns all pointer events delivered so far, in order.
func (c *MemConn) Events() []display.PointerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]display.PointerEvent(nil), c.events...)
}

// Resizes returns the resize notifications received, in order.
func (c *MemConn) Resizes() [][2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]int(nil), c.resizes...)
}

// Closed reports whether the connection was shut down.
func (c *MemConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Draw returns the connection's blit target.
func (c *MemConn) Draw() *MemDrawable { return c.draw }

// MemDriver vends MemConns, one per display id. Conn exposes a started
// connection so tests can inspect what the server side received.
type MemDriver struct {
	journal *Journal

	mu    sync.Mutex
	conns map[int]*MemConn
}

// NewMemDriver returns a driver journaling into journal.
func NewMemDriver(journal *Journal) *MemDriver {
	return &MemDriver{journal: journal, conns: make(map[int]*MemConn)}
}

func (d *MemDriver) Start(ctx context.Context, displayID, port int) (display.Conn, error) {
	c := &MemConn{journal: d.journal, displayID: displayID, draw: &MemDrawable{}}
	d.mu.Lock()
	d.conns[displayID] = c
	d.mu.Unlock()
	return c, nil
}

// Conn returns the connection started for the given display id.
func (d *MemDriver) Conn(displayID int) (*MemConn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[displayID]
	return c, ok
}

// SoftDevice is a bridge.Device rendering nothing on a GPU: targets hand
// back a deterministic byte pattern so the conversion and blit path still
// moves real pixel data.
type SoftDevice struct{}

func (SoftDevice) Negotiate(req bridge.CapabilityRequest) (bridge.CapabilityRequest, error) {
	granted := req
	granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits = 8, 8, 8, 8
	if req.StencilBits > 0 {
		granted.StencilBits = 8
	}
	return granted, nil
}

func (SoftDevice) CreateTarget(w, h int, caps bridge.CapabilityRequest) (bridge.Target, error) {
	return &softTarget{w: w, h: h}, nil
}

type softTarget struct {
	w, h int
}

func (t *softTarget) Size() (int, int) { return t.w, t.h }

func (t *softTarget) ReadPixels(dst []byte) error {
	for i := range dst {
		dst[i] = byte(i)
	}
	return nil
}

func (t *softTarget) Destroy() {}
