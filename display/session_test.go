// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package display

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn records every call so tests can assert ordering and, above
// all, that nothing disconnects when it must not.
type fakeConn struct {
	mu      sync.Mutex
	events  []PointerEvent
	exposes int
	closes  int
}

func (c *fakeConn) Bind(_ uintptr, _, _ int) (uint32, error) { return 1, nil }
func (c *fakeConn) NotifyResize(_, _ int)                    {}
func (c *fakeConn) Drawable() Drawable                       { return nil }

func (c *fakeConn) InjectPointer(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeConn) ExposeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposes++
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func pumpExited(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumpExitedLocked()
}

func startedSession(t *testing.T) (*Session, *fakeConn, *atomic.Int32) {
	t.Helper()
	s := newSession(0, 6000, 500*time.Millisecond)
	conn := &fakeConn{}
	var frames atomic.Int32
	s.Start(conn, func() error {
		frames.Add(1)
		return nil
	})
	t.Cleanup(s.Close)
	return s, conn, &frames
}

func TestSessionRendersOnStart(t *testing.T) {
	_, _, frames := startedSession(t)
	if !waitFor(t, time.Second, func() bool { return frames.Load() >= 1 }) {
		t.Fatal("no frame rendered after Start")
	}
}

func TestSessionRequestFrameTriggersRender(t *testing.T) {
	s, _, frames := startedSession(t)
	waitFor(t, time.Second, func() bool { return frames.Load() >= 1 })

	before := frames.Load()
	s.RequestFrame()
	if !waitFor(t, time.Second, func() bool { return frames.Load() > before }) {
		t.Fatal("RequestFrame did not produce a frame")
	}
}

func TestSessionDrainsPointerEventsInOrder(t *testing.T) {
	s, conn, _ := startedSession(t)

	s.EnqueuePointer(PointerEvent{Action: ActionPress, X: 10, Y: 20})
	s.EnqueuePointer(PointerEvent{Action: ActionRelease, X: 10, Y: 20})
	if !waitFor(t, time.Second, func() bool { return conn.eventCount() == 2 }) {
		t.Fatalf("drained %d events, want 2", conn.eventCount())
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.events[0].Action != ActionPress || conn.events[1].Action != ActionRelease {
		t.Errorf("event order = %v, %v, want press, release", conn.events[0].Action, conn.events[1].Action)
	}
}

func TestSessionCoalescesMotion(t *testing.T) {
	// No Start: events stay queued so the queue can be inspected.
	s := newSession(0, 6000, 500*time.Millisecond)
	s.EnqueuePointer(PointerEvent{Action: ActionPress, X: 1, Y: 1})
	s.EnqueuePointer(PointerEvent{Action: ActionMove, X: 2, Y: 2})
	s.EnqueuePointer(PointerEvent{Action: ActionMove, X: 3, Y: 3})
	s.EnqueuePointer(PointerEvent{Action: ActionMove, X: 4, Y: 4})
	s.EnqueuePointer(PointerEvent{Action: ActionRelease, X: 4, Y: 4})

	s.mu.Lock()
	defer s.mu.Unlock()
	want := []PointerEvent{
		{Action: ActionPress, X: 1, Y: 1},
		{Action: ActionMove, X: 4, Y: 4},
		{Action: ActionRelease, X: 4, Y: 4},
	}
	if len(s.queue) != len(want) {
		t.Fatalf("queue length = %d, want %d", len(s.queue), len(want))
	}
	for i := range want {
		if s.queue[i] != want[i] {
			t.Errorf("queue[%d] = %+v, want %+v", i, s.queue[i], want[i])
		}
	}
}

func TestSessionPointerUpdatesLastTouch(t *testing.T) {
	s := newSession(0, 6000, 500*time.Millisecond)
	if !s.LastTouch().IsZero() {
		t.Fatal("LastTouch set before any input")
	}
	s.EnqueuePointer(PointerEvent{Action: ActionPress})
	if s.LastTouch().IsZero() {
		t.Error("LastTouch not updated by EnqueuePointer")
	}
}

func TestSessionPauseStopsRendering(t *testing.T) {
	s, _, frames := startedSession(t)
	waitFor(t, time.Second, func() bool { return frames.Load() >= 1 })

	s.PauseRendering()
	if !pumpExited(s) {
		t.Fatal("pump still live after PauseRendering")
	}
	before := frames.Load()
	time.Sleep(20 * time.Millisecond)
	if got := frames.Load(); got != before {
		t.Errorf("frames advanced from %d to %d while paused", before, got)
	}
}

func TestSessionResumeRestartsAndReprimes(t *testing.T) {
	s, conn, frames := startedSession(t)
	waitFor(t, time.Second, func() bool { return frames.Load() >= 1 })

	s.PauseRendering()
	before := frames.Load()
	s.ResumeRendering(3)
	if !waitFor(t, time.Second, func() bool { return frames.Load() > before }) {
		t.Fatal("no frame after ResumeRendering")
	}
	conn.mu.Lock()
	exposes := conn.exposes
	conn.mu.Unlock()
	if exposes != 1 {
		t.Errorf("ExposeAll called %d times, want 1", exposes)
	}
}

func TestSessionHideResumeNeverDisconnects(t *testing.T) {
	s, conn, _ := startedSession(t)
	for i := 0; i < 25; i++ {
		s.PauseRendering()
		s.ResumeRendering(1)
	}
	if got := conn.closeCount(); got != 0 {
		t.Errorf("connection closed %d times across hide/resume cycles, want 0", got)
	}
}

func TestSessionRequestFrameRestartsDeadPump(t *testing.T) {
	s := newSession(0, 6000, 500*time.Millisecond)
	conn := &fakeConn{}
	var frames atomic.Int32
	var failFirst atomic.Bool
	failFirst.Store(true)
	s.Start(conn, func() error {
		frames.Add(1)
		if failFirst.Swap(false) {
			return errors.New("swap failed")
		}
		return nil
	})
	t.Cleanup(s.Close)

	if !waitFor(t, time.Second, func() bool { return pumpExited(s) }) {
		t.Fatal("pump did not exit on frame error")
	}
	before := frames.Load()
	s.RequestFrame()
	if !waitFor(t, time.Second, func() bool { return frames.Load() > before }) {
		t.Fatal("RequestFrame did not restart the dead pump")
	}
}

func TestSessionCloseIsFinal(t *testing.T) {
	s, conn, frames := startedSession(t)
	s.Close()
	if !s.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	before := frames.Load()
	s.RequestFrame()
	s.EnqueuePointer(PointerEvent{Action: ActionPress})
	time.Sleep(20 * time.Millisecond)
	if got := frames.Load(); got != before {
		t.Errorf("frames advanced after Close: %d -> %d", before, got)
	}
	// Close stops the pump but must not disconnect; the disposal
	// sequence owns that, in order.
	if got := conn.closeCount(); got != 0 {
		t.Errorf("session Close disconnected the server %d times", got)
	}
}

func TestSessionStartTwiceKeepsFirstFrameFunc(t *testing.T) {
	s := newSession(0, 6000, 500*time.Millisecond)
	conn := &fakeConn{}
	var first, second atomic.Int32
	s.Start(conn, func() error { first.Add(1); return nil })
	s.Start(conn, func() error { second.Add(1); return nil })
	t.Cleanup(s.Close)

	waitFor(t, time.Second, func() bool { return first.Load() >= 1 })
	if second.Load() != 0 {
		t.Errorf("second Start replaced the frame func (ran %d times)", second.Load())
	}
}
