// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package display

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks on their own goroutines with bounded concurrency.
// Every submitted task gets a fresh goroutine, so one slow task never
// queues behind another; the semaphore only caps how many run at once.
type Executor struct {
	name string
	sem  *semaphore.Weighted

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Handle tracks one submitted task.
type Handle struct {
	done chan struct{}
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task has finished.
func (h *Handle) Wait() { <-h.done }

// NewExecutor returns an executor that runs at most limit tasks
// concurrently. The name only appears in log output.
func NewExecutor(name string, limit int) *Executor {
	if limit < 1 {
		limit = 1
	}
	return &Executor{
		name: name,
		sem:  semaphore.NewWeighted(int64(limit)),
	}
}

// Submit schedules task on its own goroutine. The task starts as soon as
// a concurrency slot is free. Submitting to a closed executor is a logged
// no-op; the returned handle is already done.
func (e *Executor) Submit(task func()) *Handle {
	h := &Handle{done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger().Warn("task submitted to closed executor", "executor", e.name)
		close(h.done)
		return h
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer close(h.done)
		defer e.wg.Done()
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		task()
	}()
	return h
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}
