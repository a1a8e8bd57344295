// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package embedded

import (
	"time"

	"github.com/gogpu/plugview"
)

// Harness assembles the doubles into a ready Manager. All doubles share
// one Journal.
type Harness struct {
	Journal *Journal
	Engine  *StubEngine
	Driver  *MemDriver
	Manager *plugview.Manager
}

// NewHarness builds a Manager over fresh doubles. The base options are
// tuned for tests: millisecond settle, cooldown and idle intervals, so a
// full lifecycle completes in well under a second. Callers append their
// own options after the base set.
func NewHarness(opts ...plugview.Option) (*Harness, error) {
	j := &Journal{}
	eng := NewStubEngine(j, 600, 400)
	drv := NewMemDriver(j)

	base := []plugview.Option{
		plugview.WithSettleDelay(2 * time.Millisecond),
		plugview.WithReleaseCooldown(2 * time.Millisecond),
		plugview.WithIdleInterval(2 * time.Millisecond),
	}
	mgr, err := plugview.NewManager(eng, drv, SoftDevice{}, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Harness{Journal: j, Engine: eng, Driver: drv, Manager: mgr}, nil
}

// Close shuts the Manager down.
func (h *Harness) Close() { h.Manager.Close() }
