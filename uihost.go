package plugview

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoInstance means the content item has no live hosted UI, so there
// is nothing to deliver the file or parameter change to.
var ErrNoInstance = errors.New("plugview: no live instance")

// idlePumpBurst caps how many pump passes one idle tick may run when the
// engine keeps reporting pending work, so a chatty instance cannot pin
// the pump goroutine.
const idlePumpBurst = 4

// UIHost wraps the engine with the bookkeeping the bindings need:
// which instantiations are in flight, which content items have a live
// hosted UI, and the idle pump that drives protocol event processing
// while any of them do.
//
// It makes the engine's lifecycle calls safe to use from the binding
// workers: Instantiate marks instances live, Destroy of an instance
// that is not live never reaches the engine, and the in-flight marker
// set by BeginInstantiate lets a racing teardown see that a worker is
// still inside the engine.
type UIHost struct {
	engine Engine

	mu       sync.Mutex
	inflight map[int]int // display id -> content index
	live     map[int]int // content index -> display id
	paused   bool

	pumpStop chan struct{}
	pumpDone chan struct{}
}

// NewUIHost wraps an engine. The idle pump is not started; the Manager
// does that once it knows the configured interval.
func NewUIHost(engine Engine) *UIHost {
	return &UIHost{
		engine:   engine,
		inflight: make(map[int]int),
		live:     make(map[int]int),
	}
}

// BeginInstantiate records the in-flight marker and forwards to the
// engine. Called on the binding's owner goroutine before the
// instantiation worker is scheduled, so the marker is always visible
// before the worker can touch the engine.
func (u *UIHost) BeginInstantiate(displayID, contentIndex int) {
	u.mu.Lock()
	u.inflight[displayID] = contentIndex
	u.mu.Unlock()
	u.engine.BeginInstantiate(displayID, contentIndex)
}

// InstantiationInFlight reports whether a worker is currently inside
// the engine instantiating a UI for the display.
func (u *UIHost) InstantiationInFlight(displayID int) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.inflight[displayID]
	return ok
}

// Instantiate runs the engine instantiation and, on success, marks the
// content item live. The in-flight marker is cleared either way. A
// negative index means the content item was removed from the chain
// while the worker was queued; the engine is not called for it.
func (u *UIHost) Instantiate(contentIndex, displayID int, root uint32) error {
	if contentIndex < 0 {
		u.mu.Lock()
		delete(u.inflight, displayID)
		u.mu.Unlock()
		return fmt.Errorf("plugview: instantiate on display %d: content removed: %w",
			displayID, ErrNoInstance)
	}
	err := u.engine.Instantiate(contentIndex, displayID, root)
	u.mu.Lock()
	delete(u.inflight, displayID)
	if err == nil {
		u.live[contentIndex] = displayID
	}
	u.mu.Unlock()
	return err
}

// Destroy tears down the hosted UI for the content item. Destroying an
// item that is not live is a logged no-op, so the teardown sequence can
// call it unconditionally.
func (u *UIHost) Destroy(contentIndex int) {
	u.mu.Lock()
	_, ok := u.live[contentIndex]
	delete(u.live, contentIndex)
	u.mu.Unlock()
	if !ok {
		Logger().Warn("destroy of an already-gone instance", "content", contentIndex)
		return
	}
	u.engine.Destroy(contentIndex)
}

// LiveCount returns how many content items have a live hosted UI.
func (u *UIHost) LiveCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.live)
}

// chainMove returns the position index i lands on after the chain entry
// at from is erased and reinserted at to, the same move a dense content
// list performs.
func chainMove(i, from, to int) int {
	switch {
	case i == from:
		return to
	case from < to && i > from && i <= to:
		return i - 1
	case to < from && i >= to && i < from:
		return i + 1
	}
	return i
}

// Reorder re-keys the bookkeeping after the host moved a content item
// to a new chain position, so deliveries keep reaching the UIs that
// moved with it. Callers pause the UIs around a non-atomic chain
// rebuild; a plain move needs no pause.
func (u *UIHost) Reorder(oldIndex, newIndex int) {
	if oldIndex == newIndex {
		return
	}
	u.mu.Lock()
	live := make(map[int]int, len(u.live))
	for idx, id := range u.live {
		live[chainMove(idx, oldIndex, newIndex)] = id
	}
	u.live = live
	for id, idx := range u.inflight {
		u.inflight[id] = chainMove(idx, oldIndex, newIndex)
	}
	u.mu.Unlock()
	Logger().Info("content reordered", "from", oldIndex, "to", newIndex)
}

// RemoveAndShift drops the bookkeeping for a content item the host
// removed from its chain and moves every index above it one position
// down. A UI still open for the removed item stays on screen but no
// longer receives deliveries; disposing its view cleans it up. An
// in-flight instantiation for it is invalidated so the worker never
// reaches the engine.
func (u *UIHost) RemoveAndShift(contentIndex int) {
	u.mu.Lock()
	_, wasLive := u.live[contentIndex]
	delete(u.live, contentIndex)
	live := make(map[int]int, len(u.live))
	for idx, id := range u.live {
		if idx > contentIndex {
			idx--
		}
		live[idx] = id
	}
	u.live = live
	for id, idx := range u.inflight {
		switch {
		case idx == contentIndex:
			u.inflight[id] = -1
		case idx > contentIndex:
			u.inflight[id] = idx - 1
		}
	}
	u.mu.Unlock()
	if wasLive {
		Logger().Warn("removed content still had a live UI", "content", contentIndex)
	}
	Logger().Info("content removed", "index", contentIndex)
}

// RequestFrame forwards a repaint request for the display's content.
func (u *UIHost) RequestFrame(displayID int) {
	u.engine.RequestFrame(displayID)
}

// HitTest forwards the widget probe for the display.
func (u *UIHost) HitTest(displayID, x, y int) bool {
	return u.engine.HitTest(displayID, x, y)
}

// NaturalSize forwards the engine's preferred-size query.
func (u *UIHost) NaturalSize(contentIndex, displayID int) (w, h int, ok bool) {
	return u.engine.NaturalSize(contentIndex, displayID)
}

// ScaleFactor forwards the engine's UI scale query.
func (u *UIHost) ScaleFactor(displayID int) float64 {
	return u.engine.ScaleFactor(displayID)
}

// DeliverFile pushes an externally obtained file into the hosted UI for
// the content item. Fails with ErrNoInstance when it has none.
func (u *UIHost) DeliverFile(contentIndex int, propertyURI, path string) error {
	u.mu.Lock()
	_, ok := u.live[contentIndex]
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugview: deliver file to content %d: %w", contentIndex, ErrNoInstance)
	}
	return u.engine.DeliverFile(contentIndex, propertyURI, path)
}

// NotifyParameter tells the hosted UI about an outside parameter change.
// Fails with ErrNoInstance when the content item has no live UI.
func (u *UIHost) NotifyParameter(contentIndex int, symbol string, value float32) error {
	u.mu.Lock()
	_, ok := u.live[contentIndex]
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugview: notify content %d: %w", contentIndex, ErrNoInstance)
	}
	return u.engine.NotifyParameter(contentIndex, symbol, value)
}

// StartPump starts the idle pump at the given interval. Each tick runs
// the engine's event pump while any instance is live or instantiating,
// unless paused. A second Start is a no-op.
func (u *UIHost) StartPump(interval time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pumpStop != nil {
		return
	}
	u.pumpStop = make(chan struct{})
	u.pumpDone = make(chan struct{})
	go u.pump(interval, u.pumpStop, u.pumpDone)
}

func (u *UIHost) pump(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		u.mu.Lock()
		idle := u.paused || (len(u.live) == 0 && len(u.inflight) == 0)
		u.mu.Unlock()
		if idle {
			continue
		}
		for i := 0; i < idlePumpBurst && u.engine.PumpIdle(); i++ {
		}
	}
}

// PauseAll suspends the idle pump, for when the whole host app goes to
// the background. Live instances keep their state.
func (u *UIHost) PauseAll() {
	u.mu.Lock()
	u.paused = true
	u.mu.Unlock()
}

// ResumeAll reverses PauseAll.
func (u *UIHost) ResumeAll() {
	u.mu.Lock()
	u.paused = false
	u.mu.Unlock()
}

// StopPump stops the idle pump and waits for it to exit. Idempotent.
func (u *UIHost) StopPump() {
	u.mu.Lock()
	stop, done := u.pumpStop, u.pumpDone
	u.pumpStop, u.pumpDone = nil, nil
	u.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
