package plugview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/display"
	"github.com/gogpu/plugview/input"
)

var (
	// ErrNoFreeDisplay means every display session is in use. The caller
	// reports it and refuses to show the view; nothing was allocated.
	ErrNoFreeDisplay = errors.New("plugview: no free display")
	// ErrManagerClosed means the manager has been shut down.
	ErrManagerClosed = errors.New("plugview: manager closed")
)

// Manager owns the shared pieces of the embedding: the display session
// pool, the GPU device, the engine wrapper with its idle pump, and the
// live bindings. One Manager serves the whole host app.
type Manager struct {
	opts   Options
	engine Engine
	driver display.ServerDriver
	device bridge.Device
	pool   *display.Pool
	host   *UIHost

	mu       sync.Mutex
	bindings map[int]*Binding
	closed   bool
}

// NewManager wires a manager over the given engine, protocol server
// driver and GPU device. The device is shared across sessions; each
// session gets its own render target from it.
func NewManager(engine Engine, driver display.ServerDriver, device bridge.Device, opts ...Option) (*Manager, error) {
	if engine == nil || driver == nil || device == nil {
		return nil, errors.New("plugview: nil engine, driver or device")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		opts:     o,
		engine:   engine,
		driver:   driver,
		device:   device,
		host:     NewUIHost(engine),
		bindings: make(map[int]*Binding),
	}
	m.pool = display.NewPool(o.PoolCapacity,
		display.WithPortBase(o.PortBase),
		display.WithStopTimeout(o.PumpStopTimeout),
		display.WithTeardownWorkers(o.TeardownWorkers))
	m.host.StartPump(o.IdleInterval)

	l := Logger()
	propagateLogger(engine, l)
	propagateLogger(driver, l)
	propagateLogger(device, l)
	if rt, ok := device.(interface{ SetReadbackTimeout(time.Duration) }); ok {
		rt.SetReadbackTimeout(o.ReadbackTimeout)
	}

	Logger().Info("manager ready",
		"capacity", o.PoolCapacity, "port_base", o.PortBase)
	return m, nil
}

// SetLogger configures logging for the manager, all plugview packages
// and any collaborator (engine, driver, device) that accepts a logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	SetLogger(l)
	propagateLogger(m.engine, l)
	propagateLogger(m.driver, l)
	propagateLogger(m.device, l)
}

// Open allocates a display session for the content item, starts its
// protocol server and returns the binding the host view drives. The
// hosted UI is not created yet; that starts when the view's drawable
// reaches a usable size.
//
// ErrNoFreeDisplay means the pool is exhausted and the caller must
// refuse to show the view.
func (m *Manager) Open(ctx context.Context, contentIndex int) (*Binding, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	sess, err := m.pool.Allocate()
	if err != nil {
		if errors.Is(err, display.ErrPoolExhausted) {
			return nil, fmt.Errorf("%w: all %d sessions in use", ErrNoFreeDisplay, m.pool.Capacity())
		}
		return nil, err
	}

	conn, err := m.driver.Start(ctx, sess.ID(), sess.Port())
	if err != nil {
		m.rollbackOpen(sess, nil, nil)
		return nil, fmt.Errorf("plugview: start server for display %d: %w", sess.ID(), err)
	}

	surf := bridge.New(m.device, conn.Drawable())
	if err := surf.Configure(); err != nil {
		// No usable render configuration is a hard failure; nothing can
		// be drawn for this session.
		m.rollbackOpen(sess, conn, surf)
		return nil, fmt.Errorf("plugview: display %d: %w", sess.ID(), err)
	}

	router := input.NewRouter(sess, displayHitTester{m.host, sess.ID()},
		input.WithDamping(m.opts.TouchDamping))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.rollbackOpen(sess, conn, surf)
		return nil, ErrManagerClosed
	}
	b := newBinding(contentIndex, sess, conn, surf, router, m.host, m.pool, m.opts, m.release)
	m.bindings[sess.ID()] = b
	m.mu.Unlock()

	Logger().Info("view opened",
		"display", sess.ID(), "content", contentIndex, "trace", b.TraceID())
	return b, nil
}

// rollbackOpen unwinds a partially built session. Nothing was handed to
// a binding yet, so this runs inline rather than on a teardown worker.
func (m *Manager) rollbackOpen(sess *display.Session, conn display.Conn, surf *bridge.Surface) {
	sess.Close()
	if surf != nil {
		surf.Destroy()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			Logger().Warn("connection close during rollback",
				"display", sess.ID(), "err", err)
		}
	}
	if err := m.pool.Release(sess.ID()); err != nil {
		Logger().Error("release during rollback", "display", sess.ID(), "err", err)
	}
}

// release is the binding's completion hook; it runs on a teardown
// worker after the display id went back to the pool.
func (m *Manager) release(displayID int) {
	m.mu.Lock()
	delete(m.bindings, displayID)
	m.mu.Unlock()
}

// Binding returns the live binding for a display id.
func (m *Manager) Binding(displayID int) (*Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[displayID]
	return b, ok
}

// FreeDisplays returns how many sessions are still available.
func (m *Manager) FreeDisplays() int {
	return m.pool.Capacity() - m.pool.Allocated()
}

// DeliverFile pushes an externally obtained file into the hosted UI for
// the content item.
func (m *Manager) DeliverFile(contentIndex int, propertyURI, path string) error {
	return m.host.DeliverFile(contentIndex, propertyURI, path)
}

// NotifyParameter informs the content item's hosted UI of a parameter
// change made outside it.
func (m *Manager) NotifyParameter(contentIndex int, symbol string, value float32) error {
	return m.host.NotifyParameter(contentIndex, symbol, value)
}

// Reorder follows a move in the host's content chain: the item at
// oldIndex now lives at newIndex. Delivery routing and every open
// binding's content index are re-keyed to the new positions.
func (m *Manager) Reorder(oldIndex, newIndex int) {
	if oldIndex == newIndex {
		return
	}
	m.host.Reorder(oldIndex, newIndex)
	for _, b := range m.snapshot() {
		b.shiftContent(func(i int) int { return chainMove(i, oldIndex, newIndex) })
	}
}

// RemoveAndShift follows a removal from the host's content chain: the
// item at contentIndex is gone and everything above it moved one down.
// An open binding for the removed item keeps its view until the host
// disposes it, but is cut off from deliveries.
func (m *Manager) RemoveAndShift(contentIndex int) {
	m.host.RemoveAndShift(contentIndex)
	for _, b := range m.snapshot() {
		b.shiftContent(func(i int) int {
			switch {
			case i == contentIndex:
				return -1
			case i > contentIndex:
				return i - 1
			}
			return i
		})
	}
}

// PauseAll hides every binding and suspends the idle pump, for when the
// host app goes to the background. No connection is touched.
func (m *Manager) PauseAll() {
	m.host.PauseAll()
	for _, b := range m.snapshot() {
		b.Hide()
	}
}

// ResumeAll reverses PauseAll.
func (m *Manager) ResumeAll() {
	m.host.ResumeAll()
	for _, b := range m.snapshot() {
		b.Resume()
	}
}

func (m *Manager) snapshot() []*Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs := make([]*Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		bs = append(bs, b)
	}
	return bs
}

// Close disposes every binding, waits for their teardowns, then stops
// the idle pump and the pool. The wait is bounded; a binding that blows
// through it is logged and the pool close still waits for its worker.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	bs := m.snapshot()
	for _, b := range bs {
		b.Dispose()
	}
	wait := m.opts.SettleDelay + m.opts.ReleaseCooldown + m.opts.PumpStopTimeout + 2*time.Second
	for _, b := range bs {
		select {
		case <-b.Done():
		case <-time.After(wait):
			Logger().Warn("teardown still running at close", "display", b.DisplayID())
		}
	}

	m.host.StopPump()
	m.pool.Close()
	Logger().Info("manager closed")
}

// displayHitTester adapts the engine's widget probe to the touch
// router's interface for one display.
type displayHitTester struct {
	host *UIHost
	id   int
}

func (t displayHitTester) HitTest(x, y int) bool {
	return t.host.HitTest(t.id, x, y)
}
