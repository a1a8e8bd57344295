package plugview

// Engine is the narrow contract against the audio/plugin engine that owns
// the hosted UIs. plugview drives it but never owns plugin state; content
// is referenced only by its index in the engine's chain.
//
// Instantiate and Destroy take non-trivial wall-clock time (native library
// loading, protocol handshake) and are always called off the host UI
// goroutine, on workers owned by the display pool. Everything else must be
// cheap and non-blocking.
type Engine interface {
	// BeginInstantiate marks that an instantiation for the given display
	// is about to start, before any worker is scheduled. A racing
	// teardown consults this marker to know the protocol connection must
	// not be closed yet.
	BeginInstantiate(displayID, contentIndex int)

	// Instantiate creates the hosted UI inside the display, parented to
	// the root window obtained at attach time. Runs on an instantiation
	// worker. A non-nil error leaves the display allocated; teardown is
	// driven by view disposal, not by this failure.
	Instantiate(contentIndex, displayID int, root uint32) error

	// Destroy tears down the hosted UI for the content item. Must
	// tolerate being called for an instance that already tore itself
	// down.
	Destroy(contentIndex int)

	// PumpIdle drives protocol event processing for all live instances.
	// Reports whether any instance still has work pending.
	PumpIdle() bool

	// RequestFrame asks the display's render path for a repaint.
	RequestFrame(displayID int)

	// HitTest reports whether the display coordinate lands on an
	// interactive widget of the hosted UI. Synchronous and cheap.
	HitTest(displayID, x, y int) bool

	// NaturalSize returns the hosted UI's preferred content size once
	// instantiation has completed. ok is false before that.
	NaturalSize(contentIndex, displayID int) (w, h int, ok bool)

	// ScaleFactor returns the UI scale the hosted toolkit selected for
	// the display (1.0 when unscaled or unknown).
	ScaleFactor(displayID int) float64

	// DeliverFile pushes an externally obtained file (model, preset,
	// impulse response) into an already-instantiated hosted UI, keyed by
	// the toolkit-level property identifier.
	DeliverFile(contentIndex int, propertyURI, path string) error

	// NotifyParameter informs the hosted UI that a parameter changed
	// outside it (host automation, preset load) so it can repaint its
	// controls.
	NotifyParameter(contentIndex int, symbol string, value float32) error
}
