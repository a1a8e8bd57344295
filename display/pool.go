// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package display

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted means every display id is in use. The caller
	// reports it and refuses to show the view; it is never fatal.
	ErrPoolExhausted = errors.New("display: no free display id")
	// ErrNotAllocated means the id has no live session.
	ErrNotAllocated = errors.New("display: id not allocated")
	// ErrSessionBusy means the session has not finished its teardown
	// sequence, so releasing its id would allow reuse while the old
	// instance can still reference it.
	ErrSessionBusy = errors.New("display: session still tearing down")
	// ErrPoolClosed means the pool has been shut down.
	ErrPoolClosed = errors.New("display: pool closed")
)

// Pool is a fixed-capacity allocator of display ids. It also owns the
// shared executors: a small bounded pool for teardown sequences and one
// worker slot per display id for instantiations, so a slow or hung
// instance never stalls the others.
//
// There are no process-wide pools; embedders and tests create as many
// independent ones as they need.
type Pool struct {
	mu       sync.Mutex
	sessions []*Session
	closed   bool

	portBase    int
	stopTimeout time.Duration
	teardown    *Executor
	instant     *Executor
}

type poolConfig struct {
	portBase        int
	stopTimeout     time.Duration
	teardownWorkers int
}

// PoolOption configures a Pool during creation.
type PoolOption func(*poolConfig)

// WithPortBase sets the base port; display id N listens on portBase+N.
func WithPortBase(p int) PoolOption {
	return func(c *poolConfig) { c.portBase = p }
}

// WithStopTimeout bounds how long a session waits for its render pump to
// acknowledge a stop.
func WithStopTimeout(d time.Duration) PoolOption {
	return func(c *poolConfig) { c.stopTimeout = d }
}

// WithTeardownWorkers bounds the teardown executor.
func WithTeardownWorkers(n int) PoolOption {
	return func(c *poolConfig) { c.teardownWorkers = n }
}

// NewPool returns a pool of capacity display ids, numbered from 0.
func NewPool(capacity int, opts ...PoolOption) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	cfg := poolConfig{
		portBase:        6000,
		stopTimeout:     500 * time.Millisecond,
		teardownWorkers: 2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool{
		sessions:    make([]*Session, capacity),
		portBase:    cfg.portBase,
		stopTimeout: cfg.stopTimeout,
		teardown:    NewExecutor("teardown", cfg.teardownWorkers),
		instant:     NewExecutor("instantiate", capacity),
	}
}

// Capacity returns the fixed pool size.
func (p *Pool) Capacity() int { return len(p.sessions) }

// Allocated returns how many ids are currently live.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

// Allocate claims the lowest free id and returns its session.
func (p *Pool) Allocate() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	for id, s := range p.sessions {
		if s == nil {
			sess := newSession(id, p.portBase+id, p.stopTimeout)
			p.sessions[id] = sess
			logger().Info("display allocated", "display", id, "port", sess.Port())
			return sess, nil
		}
	}
	logger().Warn("display pool exhausted", "capacity", len(p.sessions))
	return nil, ErrPoolExhausted
}

// Release returns an id to the pool. The session must have been closed
// first: releasing mid-teardown would let the id be reused while the old
// instance still references it, which is exactly the fault class this
// package exists to prevent.
func (p *Pool) Release(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.sessions) {
		return fmt.Errorf("display: release id %d: %w", id, ErrNotAllocated)
	}
	s := p.sessions[id]
	if s == nil {
		return fmt.Errorf("display: release id %d: %w", id, ErrNotAllocated)
	}
	if !s.Closed() {
		return fmt.Errorf("display: release id %d: %w", id, ErrSessionBusy)
	}
	p.sessions[id] = nil
	logger().Info("display released", "display", id)
	return nil
}

// Teardown returns the executor for destroy/disconnect sequences.
func (p *Pool) Teardown() *Executor { return p.teardown }

// Instantiation returns the executor for hosted-UI instantiation, sized
// so each display id can have its own in-flight worker.
func (p *Pool) Instantiation() *Executor { return p.instant }

// Close shuts the pool down: no further allocations, and both executors
// are drained. Sessions still allocated at this point are a caller bug
// and are logged, not force-released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.instant.Close()
	p.teardown.Close()

	p.mu.Lock()
	for id, s := range p.sessions {
		if s != nil {
			logger().Warn("display still allocated at pool close", "display", id)
		}
	}
	p.mu.Unlock()
}
