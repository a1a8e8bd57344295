// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package logx holds the shared logger plumbing used by every plugview
// package. The root package owns the public SetLogger API; subsystem
// packages each keep a Holder so they can be configured without importing
// the root (which would cycle).
package logx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely,
// making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Nop returns a logger that discards all output.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }

// Holder stores a logger behind an atomic pointer so Set can race with
// logging from any goroutine.
type Holder struct {
	p atomic.Pointer[slog.Logger]
}

// NewHolder returns a Holder that starts out silent.
func NewHolder() *Holder {
	h := &Holder{}
	h.p.Store(Nop())
	return h
}

// Set replaces the held logger. Passing nil restores the silent default.
func (h *Holder) Set(l *slog.Logger) {
	if l == nil {
		l = Nop()
	}
	h.p.Store(l)
}

// Get returns the held logger. Never nil.
func (h *Holder) Get() *slog.Logger { return h.p.Load() }
