package plugview

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/display"
	"github.com/gogpu/plugview/input"
)

// ErrAttachFailed means the protocol server accepted the drawable but
// returned a zero root window, so no hosted UI could ever be parented
// under it. The binding reverts to unbound and reports the error upward.
var ErrAttachFailed = errors.New("plugview: attach failed: zero root window")

// State is the lifecycle position of a Binding.
type State int

const (
	// StateUnbound means no usable drawable has been attached yet.
	StateUnbound State = iota
	// StateAttaching means the drawable is being bound to the server.
	StateAttaching
	// StateInstantiating means the drawable is bound and the hosted UI
	// is being created on an instantiation worker.
	StateInstantiating
	// StateReady means the hosted UI is live and the render pump runs.
	StateReady
	// StateHidden means the UI is live but the render pump is paused,
	// either because the host view is hidden or its drawable went away.
	StateHidden
	// StateDetaching means disposal has started; the teardown sequence
	// is running or waiting on an in-flight instantiation.
	StateDetaching
	// StateDestroyed means teardown finished and the display id has
	// been returned to the pool.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateAttaching:
		return "attaching"
	case StateInstantiating:
		return "instantiating"
	case StateReady:
		return "ready"
	case StateHidden:
		return "hidden"
	case StateDetaching:
		return "detaching"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Binding ties one content item to one display session for the lifetime
// of a host view. It owns the ordering that makes the embedding safe:
// attach before instantiate, instantiate before first frame, destroy
// before disconnect, disconnect before the display id is released.
//
// All lifecycle transitions run on a single owner goroutine; the public
// methods post messages to it and return immediately, so they are safe
// to call from the host UI thread, which must never block. RequestFrame
// is the exception: it only pokes the render pump and bypasses the
// mailbox entirely.
type Binding struct {
	// contentIndex follows the host's content chain: Reorder and
	// RemoveAndShift rewrite it while the view is open, and a removed
	// item leaves -1 behind. Workers load it at use, never at capture.
	contentIndex atomic.Int64
	traceID      string
	opts         Options

	session *display.Session
	conn    display.Conn
	surf    *bridge.Surface
	host    *UIHost
	pool    *display.Pool
	router  *input.Router

	mailbox chan func()
	done    chan struct{}

	// detachRequested is the marker a racing dispose leaves for the
	// instantiation worker: "the connection must not be closed yet,
	// and you own the teardown when you are finished".
	detachRequested atomic.Bool

	// Owner-goroutine state. Only mailbox closures touch these.
	handle       uintptr
	root         uint32
	surfW, surfH int
	workerLive   bool
	surfaceGone  bool
	appHidden    bool

	mu       sync.Mutex
	state    State
	lastErr  error
	naturalW int
	naturalH int
	scale    float64

	onReady   func(w, h int, scale float64)
	onError   func(error)
	onRelease func(displayID int)
}

func newBinding(contentIndex int, sess *display.Session, conn display.Conn, surf *bridge.Surface,
	router *input.Router, host *UIHost, pool *display.Pool, opts Options, onRelease func(int)) *Binding {
	b := &Binding{
		traceID:   uuid.NewString(),
		opts:      opts,
		session:   sess,
		conn:      conn,
		surf:      surf,
		host:      host,
		pool:      pool,
		router:    router,
		mailbox:   make(chan func(), 64),
		done:      make(chan struct{}),
		scale:     1,
		onRelease: onRelease,
	}
	b.contentIndex.Store(int64(contentIndex))
	go b.run()
	return b
}

func (b *Binding) run() {
	for {
		select {
		case <-b.done:
			return
		case fn := <-b.mailbox:
			fn()
		}
	}
}

func (b *Binding) post(fn func()) {
	select {
	case <-b.done:
	case b.mailbox <- fn:
	}
}

// DisplayID returns the display session id this binding renders into.
func (b *Binding) DisplayID() int { return b.session.ID() }

// ContentIndex returns the engine chain index of the hosted content.
func (b *Binding) ContentIndex() int { return int(b.contentIndex.Load()) }

// shiftContent rewrites the content index after a chain mutation. The
// Manager is the only caller; host apps serialize chain edits.
func (b *Binding) shiftContent(remap func(int) int) {
	b.contentIndex.Store(int64(remap(b.ContentIndex())))
}

// TraceID returns the correlation id stamped on this binding's log
// records.
func (b *Binding) TraceID() string { return b.traceID }

// State returns the current lifecycle state.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the most recent error reported upward, if any.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// NaturalSize returns the hosted UI's preferred content size, captured
// when the UI became ready. ok is false before that.
func (b *Binding) NaturalSize() (w, h int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.naturalW, b.naturalH, b.naturalW > 0 && b.naturalH > 0
}

// ScaleFactor returns the UI scale the hosted toolkit selected, 1.0
// until the UI is ready.
func (b *Binding) ScaleFactor() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scale
}

// Router returns the touch router feeding this binding's display. The
// host forwards its touch events there.
func (b *Binding) Router() *input.Router { return b.router }

// Done is closed once teardown has finished and the display id has been
// released.
func (b *Binding) Done() <-chan struct{} { return b.done }

// OnReady registers a callback invoked on the binding's owner goroutine
// when the hosted UI becomes ready, with its natural size and UI scale.
// Register before the first surface callback.
func (b *Binding) OnReady(fn func(w, h int, scale float64)) {
	b.mu.Lock()
	b.onReady = fn
	b.mu.Unlock()
}

// OnError registers a callback for errors the binding reports upward:
// attach failures, instantiation failures. Frame errors are not
// reported here; they are logged and the pump restarts on demand.
func (b *Binding) OnError(fn func(error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// SurfaceAvailable is the host's drawable-created callback. The first
// usable size triggers the attach; redelivery of the same handle is at
// most a resize, and a fresh handle while the UI is live rebinds it.
func (b *Binding) SurfaceAvailable(handle uintptr, w, h int) {
	b.post(func() { b.handleSurfaceAvailable(handle, w, h) })
}

// SurfaceResized is the host's drawable-resize callback. It also
// completes a deferred attach once the drawable reaches a usable size.
func (b *Binding) SurfaceResized(w, h int) {
	b.post(func() { b.handleResize(w, h) })
}

// SurfaceDestroyed is the host's drawable-destroyed callback. The render
// pump stops; the hosted UI, the connection and the display id all stay
// alive so a later SurfaceAvailable can rebind cheaply.
func (b *Binding) SurfaceDestroyed() {
	b.post(func() { b.handleSurfaceDestroyed() })
}

// Hide pauses rendering while the host view is invisible. It never
// releases the drawable binding or touches the connection.
func (b *Binding) Hide() {
	b.post(func() { b.handleHide() })
}

// Resume restarts rendering after Hide, re-priming the display with a
// repaint of every hosted window and a burst of frames.
func (b *Binding) Resume() {
	b.post(func() { b.handleResume() })
}

// Dispose starts the teardown sequence. It returns immediately; Done is
// closed when the display id is back in the pool. Calling it again, or
// on a binding already tearing down, is a no-op.
func (b *Binding) Dispose() {
	b.post(func() { b.handleDispose() })
}

// RequestFrame marks the display dirty, for a per-vsync heartbeat. Safe
// from any goroutine and deliberately not routed through the mailbox.
func (b *Binding) RequestFrame() {
	b.session.RequestFrame()
}

func (b *Binding) setState(s State) {
	b.mu.Lock()
	old := b.state
	b.state = s
	b.mu.Unlock()
	if old != s {
		Logger().Debug("binding state",
			"trace", b.traceID, "display", b.session.ID(), "from", old, "to", s)
	}
}

func (b *Binding) fail(err error) {
	b.mu.Lock()
	b.lastErr = err
	cb := b.onError
	b.mu.Unlock()
	Logger().Error("binding error",
		"trace", b.traceID, "display", b.session.ID(), "err", err)
	if cb != nil {
		cb(err)
	}
}

func (b *Binding) handleSurfaceAvailable(handle uintptr, w, h int) {
	switch b.State() {
	case StateDestroyed, StateDetaching:
		return
	case StateUnbound:
		b.handle = handle
		b.surfaceGone = false
		b.surfW, b.surfH = w, h
		if w < b.opts.MinUsableSize || h < b.opts.MinUsableSize {
			Logger().Debug("surface below usable size, attach deferred",
				"trace", b.traceID, "display", b.session.ID(), "w", w, "h", h)
			return
		}
		b.attach(w, h)
	default:
		if handle == b.handle {
			// Same creation event delivered again; worth at most a
			// resize.
			b.handleResize(w, h)
			return
		}
		b.rebind(handle, w, h)
	}
}

// attach binds the drawable to the protocol server and kicks off
// instantiation. Runs once per drawable-handle creation event.
func (b *Binding) attach(w, h int) {
	b.setState(StateAttaching)
	id := b.session.ID()
	Logger().Info("attaching surface",
		"trace", b.traceID, "display", id, "content", b.ContentIndex(), "w", w, "h", h)

	root, err := b.conn.Bind(b.handle, w, h)
	if err == nil && root == 0 {
		err = ErrAttachFailed
	}
	if err != nil {
		b.setState(StateUnbound)
		b.fail(fmt.Errorf("plugview: attach display %d: %w", id, err))
		return
	}
	b.root = root

	if err := b.surf.Create(); err != nil {
		// The drawable stays bound; the pending resize path retries the
		// target allocation on the next frame.
		b.fail(fmt.Errorf("plugview: display %d: %w", id, err))
	}
	b.surf.SetPending(w, h)
	b.router.SetViewport(w, h, w, h)

	b.setState(StateInstantiating)
	b.workerLive = true
	b.host.BeginInstantiate(id, b.ContentIndex())
	b.pool.Instantiation().Submit(func() { b.instantiateWorker(root) })
}

// rebind attaches a fresh drawable handle while the hosted UI is live,
// after the old one was destroyed by the host view.
func (b *Binding) rebind(handle uintptr, w, h int) {
	id := b.session.ID()
	Logger().Info("rebinding surface",
		"trace", b.traceID, "display", id, "w", w, "h", h)

	root, err := b.conn.Bind(handle, w, h)
	if err == nil && root == 0 {
		err = ErrAttachFailed
	}
	if err != nil {
		b.fail(fmt.Errorf("plugview: reattach display %d: %w", id, err))
		return
	}
	b.handle = handle
	b.root = root
	b.surfaceGone = false
	b.surfW, b.surfH = w, h
	b.surf.SetPending(w, h)
	b.router.SetViewport(w, h, w, h)

	if b.State() == StateHidden && !b.appHidden {
		b.session.ResumeRendering(b.opts.ResumeFrameBurst)
		b.setState(StateReady)
	}
}

func (b *Binding) handleResize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	switch b.State() {
	case StateDestroyed, StateDetaching:
	case StateUnbound:
		b.surfW, b.surfH = w, h
		if b.handle != 0 && w >= b.opts.MinUsableSize && h >= b.opts.MinUsableSize {
			b.attach(w, h)
		}
	default:
		b.surfW, b.surfH = w, h
		b.surf.SetPending(w, h)
		b.conn.NotifyResize(w, h)
		b.router.SetViewport(w, h, w, h)
		b.session.RequestFrame()
	}
}

func (b *Binding) handleSurfaceDestroyed() {
	st := b.State()
	if st == StateDestroyed || st == StateDetaching {
		return
	}
	b.surfaceGone = true
	b.handle = 0
	if st == StateReady {
		b.session.PauseRendering()
		b.setState(StateHidden)
	}
	Logger().Info("surface destroyed, rendering stopped",
		"trace", b.traceID, "display", b.session.ID())
}

func (b *Binding) handleHide() {
	b.appHidden = true
	if b.State() == StateReady {
		b.session.PauseRendering()
		b.setState(StateHidden)
		Logger().Info("binding hidden",
			"trace", b.traceID, "display", b.session.ID())
	}
}

func (b *Binding) handleResume() {
	b.appHidden = false
	if b.State() == StateHidden && !b.surfaceGone {
		b.session.ResumeRendering(b.opts.ResumeFrameBurst)
		b.setState(StateReady)
		Logger().Info("binding resumed",
			"trace", b.traceID, "display", b.session.ID())
	}
}

func (b *Binding) handleDispose() {
	st := b.State()
	if st == StateDestroyed || st == StateDetaching {
		return
	}
	b.setState(StateDetaching)
	if b.workerLive {
		// An instantiation is in flight. Leave the marker; the worker
		// (or its completion message, if it already passed the check)
		// runs the teardown, so the connection stays open underneath
		// the instantiate call it is still inside.
		b.detachRequested.Store(true)
		Logger().Info("dispose deferred to instantiation worker",
			"trace", b.traceID, "display", b.session.ID())
		return
	}
	b.pool.Teardown().Submit(func() { b.teardown("direct") })
}

// instantiateWorker runs on the pool's instantiation executor, one slot
// per display id.
func (b *Binding) instantiateWorker(root uint32) {
	time.Sleep(b.opts.SettleDelay)
	err := b.host.Instantiate(b.ContentIndex(), b.session.ID(), root)
	if b.detachRequested.Load() {
		b.teardown("deferred")
		return
	}
	b.post(func() { b.instantiateDone(err) })
}

func (b *Binding) instantiateDone(err error) {
	b.workerLive = false
	if b.detachRequested.Load() {
		// Dispose raced in after the worker's own check; run the
		// teardown it skipped.
		b.pool.Teardown().Submit(func() { b.teardown("deferred") })
		return
	}
	id := b.session.ID()
	if err != nil {
		// The session stays allocated and the drawable stays bound;
		// disposal cleans both up.
		b.fail(fmt.Errorf("plugview: instantiate content %d on display %d: %w",
			b.ContentIndex(), id, err))
		return
	}

	w, h, ok := b.host.NaturalSize(b.ContentIndex(), id)
	scale := b.host.ScaleFactor(id)
	b.mu.Lock()
	if ok {
		b.naturalW, b.naturalH = w, h
	}
	b.scale = scale
	cb := b.onReady
	b.mu.Unlock()

	b.session.Start(b.conn, b.frame())
	if b.appHidden || b.surfaceGone {
		b.session.PauseRendering()
		b.setState(StateHidden)
	} else {
		b.session.ResumeRendering(b.opts.ResumeFrameBurst)
		b.setState(StateReady)
	}
	Logger().Info("hosted UI ready",
		"trace", b.traceID, "display", id, "content", b.ContentIndex(),
		"natural_w", w, "natural_h", h, "scale", scale)
	if cb != nil {
		cb(w, h, scale)
	}
}

// frame builds the session's FrameFunc: ask the engine to repaint the
// hosted content, then run the readback-convert-blit cycle.
func (b *Binding) frame() display.FrameFunc {
	id := b.session.ID()
	return func() error {
		b.host.RequestFrame(id)
		return b.surf.RenderFrame(nil)
	}
}

// teardown is the one destroy sequence, shared by the direct and the
// deferred path. It runs on a worker goroutine, never inline on the
// host UI thread, and its order is the point: the hosted UI dies first,
// then the pump, then the GPU target, then the connection, and only
// after the cooldown is the display id released for reuse.
func (b *Binding) teardown(mode string) {
	id := b.session.ID()
	Logger().Info("teardown",
		"trace", b.traceID, "display", id, "content", b.ContentIndex(), "mode", mode)
	b.setState(StateDetaching)

	b.host.Destroy(b.ContentIndex())
	b.session.Close()
	b.surf.Destroy()
	if err := b.conn.Close(); err != nil {
		Logger().Warn("connection close",
			"trace", b.traceID, "display", id, "err", err)
	}
	time.Sleep(b.opts.ReleaseCooldown)
	if err := b.pool.Release(id); err != nil {
		Logger().Error("display release",
			"trace", b.traceID, "display", id, "err", err)
	}

	b.setState(StateDestroyed)
	close(b.done)
	if b.onRelease != nil {
		b.onRelease(id)
	}
	Logger().Info("binding destroyed", "trace", b.traceID, "display", id)
}
