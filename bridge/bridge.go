// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package bridge turns off-screen GPU frames into protocol-drawable
// pixels.
//
// A Surface owns one off-screen render target and the two CPU buffers of
// the conversion pipeline: readback (bottom-up RGBA, straight from the
// GPU) and blit (top-down BGRA, what the protocol server's windows
// expect). Each frame is bracketed by Enter and Leave; Enter applies any
// pending resize before the frame, Leave reads the pixels back, converts
// them in a single pass and transfers them into the drawable.
//
// The target and both buffers always resize together, in one step, so no
// frame can ever read through a buffer sized for the old dimensions. A
// resize arriving mid-frame discards that frame's content; the next one
// repaints at the right size.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/plugview/internal/logx"
)

var logh = logx.NewHolder()

// SetLogger sets the logger for the bridge package. Called by the root
// package's SetLogger.
func SetLogger(l *slog.Logger) { logh.Set(l) }

func logger() *slog.Logger { return logh.Get() }

// Surface is the render bridge for one display session.
//
// Configure, Create, Enter, Leave, RenderFrame and Destroy must all run
// on the session's render pump goroutine (or otherwise serialized).
// SetPending is the one exception: resize events may post it from any
// goroutine.
type Surface struct {
	device   Device
	drawable Drawable

	caps       CapabilityRequest
	configured bool

	target  Target
	readBuf []byte
	blitBuf []byte
	w, h    int

	mu          sync.Mutex
	pendingW    int
	pendingH    int
	havePending bool

	entered            bool
	enteredW, enteredH int
}

// New returns an unconfigured surface over the given device and drawable.
func New(device Device, drawable Drawable) *Surface {
	return &Surface{device: device, drawable: drawable}
}

// Configure negotiates a render configuration, walking the default
// capability list in order. Requests that negotiate but grant channel
// depths the pixel converter cannot handle are rejected the same as
// failed ones. Only when every request fails does Configure return
// ErrNoUsableConfig.
func (s *Surface) Configure() error {
	return s.ConfigureWith(DefaultCapabilities())
}

// ConfigureWith is Configure with a caller-supplied capability list.
func (s *Surface) ConfigureWith(reqs []CapabilityRequest) error {
	var lastErr error
	for _, req := range reqs {
		granted, err := s.device.Negotiate(req)
		if err != nil {
			logger().Debug("capability request failed", "request", req.Name, "err", err)
			lastErr = err
			continue
		}
		if granted.RedBits != 8 || granted.GreenBits != 8 || granted.BlueBits != 8 || granted.AlphaBits != 8 {
			// The one-pass converter swaps fixed byte lanes; any other
			// channel layout would need a different swizzle.
			logger().Debug("granted config has unusable channel depths",
				"request", req.Name,
				"r", granted.RedBits, "g", granted.GreenBits,
				"b", granted.BlueBits, "a", granted.AlphaBits)
			lastErr = fmt.Errorf("bridge: %s: granted %d/%d/%d/%d bit channels",
				req.Name, granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits)
			continue
		}
		s.caps = granted
		s.configured = true
		logger().Info("render configuration negotiated",
			"request", req.Name, "stencil_bits", granted.StencilBits)
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrNoUsableConfig, lastErr)
	}
	return ErrNoUsableConfig
}

// Create allocates the off-screen target and CPU buffers at the
// drawable's current size, which is queried directly because resize
// events may not have been delivered yet. A zero-size drawable defers
// allocation to the first resize.
func (s *Surface) Create() error {
	if !s.configured {
		return ErrNotConfigured
	}
	w, h := s.drawable.Size()
	if w <= 0 || h <= 0 {
		logger().Debug("drawable has no size yet, deferring target allocation")
		return nil
	}
	return s.resize(w, h)
}

// SetPending records a resize to be applied by the next Enter (or, when
// it lands mid-frame, by Leave, discarding that frame). Zero or negative
// sizes are ignored. Safe from any goroutine.
func (s *Surface) SetPending(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	s.mu.Lock()
	s.pendingW, s.pendingH = w, h
	s.havePending = w != s.w || h != s.h
	s.mu.Unlock()
}

// takePending returns the latest pending size, if it differs from the
// current one.
func (s *Surface) takePending() (w, h int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.havePending || (s.pendingW == s.w && s.pendingH == s.h) {
		s.havePending = false
		return 0, 0, false
	}
	s.havePending = false
	return s.pendingW, s.pendingH, true
}

// resize swaps the target and both CPU buffers to the new size in one
// step.
func (s *Surface) resize(w, h int) error {
	if s.target != nil {
		s.target.Destroy()
		s.target = nil
	}
	t, err := s.device.CreateTarget(w, h, s.caps)
	if err != nil {
		s.readBuf, s.blitBuf = nil, nil
		s.w, s.h = 0, 0
		return fmt.Errorf("bridge: create %dx%d target: %w", w, h, err)
	}
	s.target = t
	n := w * h * 4
	s.readBuf = make([]byte, n)
	s.blitBuf = make([]byte, n)
	s.mu.Lock()
	s.w, s.h = w, h
	s.mu.Unlock()
	logger().Debug("surface resized", "w", w, "h", h, "bytes", n)
	return nil
}

// Size returns the current frame dimensions.
func (s *Surface) Size() (w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

// Enter begins a frame: applies any pending resize first, so the frame
// is rendered at the new size, then records the entered dimensions for
// the stale-frame check in Leave. ErrNoTarget means there is nothing to
// render into yet and the frame should be skipped, not failed.
func (s *Surface) Enter() error {
	if w, h, ok := s.takePending(); ok {
		if err := s.resize(w, h); err != nil {
			return err
		}
	}
	if s.target == nil {
		return ErrNoTarget
	}
	s.entered = true
	s.enteredW, s.enteredH = s.w, s.h
	return nil
}

// Leave finishes a frame. If a resize arrived since Enter, the frame's
// content is the wrong size: the resize is applied and the blit skipped.
// Otherwise the pixels are read back, converted and transferred.
func (s *Surface) Leave() error {
	if !s.entered {
		return ErrNotEntered
	}
	s.entered = false

	if w, h, ok := s.takePending(); ok {
		logger().Debug("size changed mid-frame, discarding content",
			"old_w", s.enteredW, "old_h", s.enteredH, "new_w", w, "new_h", h)
		return s.resize(w, h)
	}

	if cr, ok := s.target.(ConvertedReader); ok {
		if err := cr.ReadConverted(s.blitBuf); err != nil {
			return fmt.Errorf("bridge: readback: %w", err)
		}
	} else {
		if err := s.target.ReadPixels(s.readBuf); err != nil {
			return fmt.Errorf("bridge: readback: %w", err)
		}
		FlipSwizzle(s.blitBuf, s.readBuf, s.w, s.h)
	}
	if err := s.drawable.PutImage(s.blitBuf, s.w, s.h); err != nil {
		return fmt.Errorf("bridge: blit: %w", err)
	}
	return s.drawable.Flush()
}

// RenderFrame runs one Enter/draw/Leave cycle. A nil draw just refreshes
// the drawable from the target. Skipped frames (no target yet) return
// nil.
func (s *Surface) RenderFrame(draw func() error) error {
	if err := s.Enter(); err != nil {
		if errors.Is(err, ErrNoTarget) {
			return nil
		}
		return err
	}
	if draw != nil {
		if err := draw(); err != nil {
			s.entered = false
			return err
		}
	}
	return s.Leave()
}

// Destroy releases the target and buffers. Idempotent.
func (s *Surface) Destroy() {
	if s.target != nil {
		s.target.Destroy()
		s.target = nil
	}
	s.readBuf, s.blitBuf = nil, nil
	s.mu.Lock()
	s.w, s.h = 0, 0
	s.havePending = false
	s.mu.Unlock()
	s.entered = false
}
