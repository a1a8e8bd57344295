// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package display

import "context"

// Action is the protocol-level pointer event kind.
type Action int

const (
	// ActionPress is a pointer button press at an absolute coordinate.
	ActionPress Action = iota
	// ActionMove is pointer motion to an absolute coordinate.
	ActionMove
	// ActionRelease is a pointer button release. Host-side cancels are
	// injected as releases; the protocol has no cancel.
	ActionRelease
)

func (a Action) String() string {
	switch a {
	case ActionPress:
		return "press"
	case ActionMove:
		return "move"
	case ActionRelease:
		return "release"
	default:
		return "unknown"
	}
}

// PointerEvent is one pointer event in display coordinates.
type PointerEvent struct {
	Action Action
	X, Y   int
}

// ServerDriver starts embedded protocol servers. Implementations wrap the
// real server binary or library; tests use counting fakes. plugview never
// implements the protocol itself.
type ServerDriver interface {
	// Start launches the server for the given display id, listening on
	// the given local port, and returns its connection. The returned
	// Conn is ready for Bind.
	Start(ctx context.Context, displayID, port int) (Conn, error)
}

// Drawable is the blit target inside the protocol server: pixels written
// here become visible in the hosted UI's window. Implementations wrap the
// server's image-transfer primitive.
type Drawable interface {
	// Size returns the drawable's current dimensions.
	Size() (w, h int)
	// PutImage transfers a full frame of top-down BGRA pixels,
	// len(pix) == w*h*4.
	PutImage(pix []byte, w, h int) error
	// Flush pushes buffered protocol requests to the server.
	Flush() error
}

// Conn is one live connection to an embedded protocol server.
//
// Close is the full disconnect and is called exactly once, during the
// disposal sequence, strictly after the hosted UI has been destroyed.
// Hide/resume cycles never touch it: closing the connection while the
// host renderer can still reach shared driver state is a process-killing
// fault, not a recoverable error.
type Conn interface {
	// Bind attaches the host drawable to the server and returns the root
	// window handle hosted UIs will be parented under. A zero root is a
	// hard attach failure.
	Bind(drawable uintptr, w, h int) (root uint32, err error)

	// NotifyResize informs the server that the drawable changed size.
	NotifyResize(w, h int)

	// InjectPointer delivers one pointer event to the server. Called
	// from the session's render pump, never concurrently with itself.
	InjectPointer(ev PointerEvent)

	// ExposeAll asks every hosted window to repaint, used when resuming
	// from a hidden state.
	ExposeAll()

	// Drawable returns the blit target for the bound window. Valid after
	// a successful Bind.
	Drawable() Drawable

	// Close shuts the connection down. See the type comment for when
	// this is allowed.
	Close() error
}
