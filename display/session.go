// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package display

import (
	"sync"
	"time"
)

// FrameFunc produces one frame: render the display's content into the
// off-screen target and blit it to the host drawable. It runs on the
// session's render pump goroutine. A non-nil error stops the pump; the
// next frame request starts a fresh one.
type FrameFunc func() error

// Session is one allocated display: a numeric id, the connection to its
// protocol server, and the render pump that turns frame requests into
// frames.
//
// The pump is demand-driven. Frame requests mark the session dirty and
// wake the pump; the pump drains queued pointer events, runs the frame
// callback, and sleeps again. Pausing stops the goroutine without
// touching the connection or the drawable; those are released only by the
// disposal sequence, in order.
type Session struct {
	id          int
	port        int
	stopTimeout time.Duration

	mu        sync.Mutex
	cond      *sync.Cond
	conn      Conn
	frame     FrameFunc
	dirty     bool
	running   bool
	pumpDone  chan struct{}
	closed    bool
	queue     []PointerEvent
	lastTouch time.Time
}

func newSession(id, port int, stopTimeout time.Duration) *Session {
	s := &Session{
		id:          id,
		port:        port,
		stopTimeout: stopTimeout,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the display id.
func (s *Session) ID() int { return s.id }

// Port returns the TCP port the session's protocol server listens on,
// derived from the id.
func (s *Session) Port() int { return s.port }

// Start wires the session to its server connection and starts the render
// pump. Called once, after the drawable has been bound. A second Start is
// a logged no-op.
func (s *Session) Start(conn Conn, frame FrameFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		logger().Warn("start on closed session", "display", s.id)
		return
	}
	if s.conn != nil {
		logger().Warn("session already started", "display", s.id)
		return
	}
	s.conn = conn
	s.frame = frame
	s.startPumpLocked()
	logger().Info("session started", "display", s.id, "port", s.port)
}

func (s *Session) startPumpLocked() {
	s.running = true
	s.dirty = true
	done := make(chan struct{})
	s.pumpDone = done
	go s.pump(done)
}

// pumpExitedLocked reports whether no pump goroutine is live. True both
// before the first Start and after a pump stopped or died.
func (s *Session) pumpExitedLocked() bool {
	if s.pumpDone == nil {
		return true
	}
	select {
	case <-s.pumpDone:
		return true
	default:
		return false
	}
}

func (s *Session) pump(done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		for s.running && !s.dirty {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.dirty = false
		conn := s.conn
		frame := s.frame
		events := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range events {
			conn.InjectPointer(ev)
		}
		if err := frame(); err != nil {
			// Frame production failed in the backend. Exit without
			// releasing anything; the next request restarts the pump.
			logger().Warn("frame failed, render pump exiting",
				"display", s.id, "err", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

func (s *Session) requestFrameLocked() {
	if s.closed || s.conn == nil {
		return
	}
	s.dirty = true
	if s.pumpExitedLocked() {
		s.startPumpLocked()
		return
	}
	s.cond.Signal()
}

// RequestFrame marks the display dirty and wakes the render pump,
// restarting it if it died. Cheap enough for a per-vsync heartbeat.
func (s *Session) RequestFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestFrameLocked()
}

// EnqueuePointer queues a pointer event for the pump to inject before the
// next frame. Consecutive motion events coalesce to the latest position.
func (s *Session) EnqueuePointer(ev PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastTouch = time.Now()
	if n := len(s.queue); n > 0 && ev.Action == ActionMove && s.queue[n-1].Action == ActionMove {
		s.queue[n-1] = ev
	} else {
		s.queue = append(s.queue, ev)
	}
	s.requestFrameLocked()
}

// LastTouch returns when the session last saw pointer input.
func (s *Session) LastTouch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

// PauseRendering stops the render pump and waits, with a bounded timeout,
// for it to exit. The connection and drawable stay untouched so a resume
// is cheap and safe.
func (s *Session) PauseRendering() {
	s.mu.Lock()
	if s.pumpExitedLocked() {
		s.running = false
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cond.Broadcast()
	done := s.pumpDone
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		logger().Warn("render pump did not stop in time", "display", s.id)
	}
}

// ResumeRendering restarts the pump after a pause and re-primes it with a
// burst of frame requests and a repaint of every hosted window, so the
// display recovers even if the backend restarted while hidden.
func (s *Session) ResumeRendering(burst int) {
	s.mu.Lock()
	if s.closed || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	if s.pumpExitedLocked() {
		s.startPumpLocked()
	}
	s.mu.Unlock()

	conn.ExposeAll()
	for i := 0; i < burst; i++ {
		s.RequestFrame()
	}
}

// Closed reports whether Close has run. The pool refuses to release an id
// whose session has not been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the pump for good and drops the connection and frame
// references. It does not close the protocol connection; the disposal
// sequence does that itself, after the hosted UI is destroyed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.running = false
	s.cond.Broadcast()
	done := s.pumpDone
	s.conn = nil
	s.frame = nil
	s.queue = nil
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(s.stopTimeout):
			logger().Warn("render pump did not stop in time", "display", s.id)
		}
	}
}
