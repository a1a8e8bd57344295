// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package bridge

import "errors"

var (
	// ErrNoUsableConfig means no capability request in the fallback list
	// could be satisfied. Fatal to the one instance; the UI reports an
	// instantiation error and shows nothing.
	ErrNoUsableConfig = errors.New("bridge: no usable render configuration")
	// ErrNotConfigured means Create ran before Configure.
	ErrNotConfigured = errors.New("bridge: surface not configured")
	// ErrNoTarget means the surface has no off-screen target yet, which
	// is normal while the drawable is zero-sized. The frame is skipped.
	ErrNoTarget = errors.New("bridge: no render target")
	// ErrNotEntered means Leave ran without a matching Enter.
	ErrNotEntered = errors.New("bridge: frame not entered")
)

// CapabilityRequest describes the channel depths a render configuration
// must provide. Zero bits mean "don't care"; the device fills in what it
// actually granted. All targets are off-screen; there is no window
// surface anywhere in this package.
type CapabilityRequest struct {
	// Name identifies the request in log output.
	Name string

	RedBits, GreenBits, BlueBits int
	// AlphaBits and StencilBits are what hosted toolkits need for path
	// clipping; the preferred request asks for 8 of each.
	AlphaBits   int
	StencilBits int
}

// DefaultCapabilities is the ordered fallback list Configure walks: the
// preferred request first, then a minimal one that accepts whatever the
// device grants. Each entry is validated independently; Configure fails
// hard only when every entry does.
func DefaultCapabilities() []CapabilityRequest {
	return []CapabilityRequest{
		{Name: "preferred", RedBits: 8, GreenBits: 8, BlueBits: 8, AlphaBits: 8, StencilBits: 8},
		{Name: "minimal"},
	}
}

// Device creates off-screen render targets. One Device is shared by every
// display session (the driver context is effectively a singleton); the
// targets are independent.
type Device interface {
	// Negotiate checks one capability request and returns the
	// configuration actually granted, with every bit count filled in.
	// An error means this request cannot be satisfied at all.
	Negotiate(req CapabilityRequest) (CapabilityRequest, error)

	// CreateTarget allocates an off-screen target of the given size
	// under a previously negotiated configuration.
	CreateTarget(w, h int, caps CapabilityRequest) (Target, error)
}

// Target is one off-screen GPU render target.
type Target interface {
	// Size returns the target dimensions.
	Size() (w, h int)
	// ReadPixels copies the rendered frame into dst as bottom-up RGBA,
	// len(dst) == w*h*4. The bottom-up origin matches the off-screen
	// context convention hosted toolkits render with.
	ReadPixels(dst []byte) error
	// Destroy releases the target. Safe to call twice.
	Destroy()
}

// ConvertedReader is an optional Target upgrade. A target that can
// deliver frames already converted to the drawable wire layout (top-down
// BGRA) short-circuits the CPU conversion in Leave. The result must be
// byte-identical to FlipSwizzle applied to the ReadPixels output.
type ConvertedReader interface {
	ReadConverted(dst []byte) error
}

// Drawable is where converted frames go: the window inside the protocol
// server. display.Conn vends one after Bind; the bridge only needs these
// three methods.
type Drawable interface {
	// Size returns the drawable's current dimensions.
	Size() (w, h int)
	// PutImage transfers a full frame of top-down BGRA pixels.
	PutImage(pix []byte, w, h int) error
	// Flush pushes buffered protocol requests to the server.
	Flush() error
}
