// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package input

import (
	"image"
	"math"
	"sync"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/display"
)

// DefaultDamping scales move deltas before they are accumulated. Host
// touch resolution and slop differ from what pointer-driven UIs expect;
// damping under 1 turns coarse finger travel into finer knob motion.
const DefaultDamping = 0.5

// Injector delivers protocol pointer events to a display session.
// *display.Session satisfies it.
type Injector interface {
	EnqueuePointer(ev display.PointerEvent)
}

// HitTester answers whether a content coordinate lands on an interactive
// widget of the hosted UI. Queried synchronously on press.
type HitTester interface {
	HitTest(x, y int) bool
}

// Claimer is the host's gesture-intercept chain. Claim tells it to back
// off for the rest of the sequence; Unclaim restores normal handling.
type Claimer interface {
	Claim()
	Unclaim()
}

// Router translates one host surface's pointer stream into protocol
// events for one display session. Methods are called from the host UI
// thread; the Router never blocks.
//
// State is per press/drag/release sequence. A press that hits a widget
// claims the gesture; moves are damped and accumulated in content
// coordinates so the pointer tracks finger travel smoothly; release and
// cancel always inject a release so no protocol button stays stuck down.
type Router struct {
	mu      sync.Mutex
	inj     Injector
	hit     HitTester
	claimer Claimer
	damping float64

	contentW, contentH int
	viewport           image.Rectangle

	active     bool
	claimed    bool
	lastX      float64
	lastY      float64
	posX, posY float64
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDamping overrides the move delta damping factor. Values must be in
// (0, 1]; 1 disables damping.
func WithDamping(f float64) RouterOption {
	return func(r *Router) {
		if f > 0 && f <= 1 {
			r.damping = f
		}
	}
}

// WithClaimer attaches the host gesture-intercept chain.
func WithClaimer(c Claimer) RouterOption {
	return func(r *Router) { r.claimer = c }
}

// NewRouter creates a router feeding the given session. hit may be nil
// when the hosted UI exposes no widget query; presses then never claim.
func NewRouter(inj Injector, hit HitTester, opts ...RouterOption) *Router {
	r := &Router{
		inj:     inj,
		hit:     hit,
		damping: DefaultDamping,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetClaimer attaches or replaces the host gesture-intercept chain.
// While a claim is held the swap is refused, so Claim and Unclaim stay
// paired on the same chain.
func (r *Router) SetClaimer(c Claimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claimed {
		r.claimer = c
	}
}

// SetViewport updates the letterbox mapping: content dimensions of the
// embedded display and the host surface dimensions it is centered in.
// With no viewport set, host coordinates pass through unscaled.
func (r *Router) SetViewport(contentW, contentH, hostW, hostH int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contentW, r.contentH = contentW, contentH
	r.viewport = bridge.FitRect(contentW, contentH, hostW, hostH)
}

// mapLocked converts a host coordinate to content space. Reports false
// when a viewport is set and the point lies on the letterbox bars.
func (r *Router) mapLocked(x, y float64) (float64, float64, bool) {
	if r.viewport.Empty() {
		return x, y, true
	}
	return bridge.MapToContent(r.viewport, r.contentW, r.contentH, x, y)
}

// scaleLocked is the host-to-content pixel ratio along x.
func (r *Router) scaleLocked() float64 {
	if r.viewport.Empty() || r.viewport.Dx() == 0 {
		return 1
	}
	return float64(r.contentW) / float64(r.viewport.Dx())
}

// Press starts a pointer sequence. The mapped coordinate is injected as a
// press event and hit-tested; a hit claims the gesture from the host.
// Returns whether the gesture was claimed. A press on the letterbox bars
// injects nothing and leaves the gesture with the host.
func (r *Router) Press(x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cx, cy, inside := r.mapLocked(x, y)
	if !inside {
		r.active = false
		return false
	}
	r.active = true
	r.lastX, r.lastY = x, y
	r.posX, r.posY = cx, cy

	px, py := int(math.Round(cx)), int(math.Round(cy))
	r.inj.EnqueuePointer(display.PointerEvent{Action: display.ActionPress, X: px, Y: py})

	if r.hit != nil && r.hit.HitTest(px, py) {
		r.claimed = true
		if r.claimer != nil {
			r.claimer.Claim()
		}
		logger().Debug("gesture claimed", "x", px, "y", py)
	}
	return r.claimed
}

// Move advances an active sequence. The host-space delta is scaled to
// content space, damped, and accumulated, so repeated small moves are
// not lost to rounding.
func (r *Router) Move(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	scale := r.scaleLocked() * r.damping
	r.posX += (x - r.lastX) * scale
	r.posY += (y - r.lastY) * scale
	r.lastX, r.lastY = x, y

	r.inj.EnqueuePointer(display.PointerEvent{
		Action: display.ActionMove,
		X:      int(math.Round(r.posX)),
		Y:      int(math.Round(r.posY)),
	})
}

// Release ends the sequence. A release event is always injected and the
// gesture is always un-claimed, whichever branch Press took, so no
// protocol-side button can stay stuck down.
func (r *Router) Release(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rx, ry := r.posX, r.posY
	if !r.active {
		rx, ry, _ = r.mapLocked(x, y)
	}
	r.inj.EnqueuePointer(display.PointerEvent{
		Action: display.ActionRelease,
		X:      int(math.Round(rx)),
		Y:      int(math.Round(ry)),
	})
	r.endLocked()
}

// Cancel ends the sequence like Release, at the last accumulated
// position. Hosts call it when the gesture is stolen by a parent view.
func (r *Router) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inj.EnqueuePointer(display.PointerEvent{
		Action: display.ActionRelease,
		X:      int(math.Round(r.posX)),
		Y:      int(math.Round(r.posY)),
	})
	r.endLocked()
}

func (r *Router) endLocked() {
	r.active = false
	if r.claimed {
		r.claimed = false
		if r.claimer != nil {
			r.claimer.Unclaim()
		}
	}
}

// Claimed reports whether the current sequence holds the gesture claim.
func (r *Router) Claimed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimed
}
