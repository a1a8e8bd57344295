// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package display manages the pool of embedded protocol displays.
//
// A Session pairs one display id with one running protocol server and the
// render pump that produces its frames. Sessions come from a fixed-size
// Pool; ids are reused only after the session's teardown sequence has
// fully completed. The Pool also owns the worker executors for
// instantiation and teardown so that neither ever runs on, or blocks, the
// host UI goroutine.
package display

import (
	"log/slog"

	"github.com/gogpu/plugview/internal/logx"
)

var logh = logx.NewHolder()

// SetLogger sets the logger for the display package. The root plugview
// package calls this from its own SetLogger; embedders normally never
// call it directly.
func SetLogger(l *slog.Logger) { logh.Set(l) }

func logger() *slog.Logger { return logh.Get() }
