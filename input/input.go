// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package input routes host pointer and touch streams into embedded
// display sessions.
//
// A Router holds the per-gesture state for one session: whether a press
// landed on an interactive widget (claiming the gesture from the host's
// own scroll handling), and the damped pointer position accumulated over
// a drag. Hosts feed raw surface coordinates in; the router maps them
// through the session's letterbox viewport and injects protocol pointer
// events.
package input

import (
	"log/slog"

	"github.com/gogpu/plugview/internal/logx"
)

var logh = logx.NewHolder()

// SetLogger sets the package logger. Passing nil restores the no-op logger.
func SetLogger(l *slog.Logger) { logh.Set(l) }

func logger() *slog.Logger { return logh.Get() }
