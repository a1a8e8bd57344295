package plugview

import (
	"fmt"
	"time"
)

// Options holds the tunables for a Manager and everything it owns. The
// zero value is not usable; start from DefaultOptions or NewManager's
// functional options.
type Options struct {
	// PoolCapacity is the fixed number of display sessions that can be
	// live at once. Opening more views than this fails with
	// ErrNoFreeDisplay and the caller must refuse to show the UI.
	PoolCapacity int

	// PortBase is added to a session id to derive the TCP port its
	// protocol server listens on (display :N listens on PortBase+N).
	PortBase int

	// MinUsableSize is the minimum drawable edge, in pixels, required
	// before a surface is attached. Sub-threshold callbacks are ignored
	// until a resize supplies a usable size.
	MinUsableSize int

	// SettleDelay is slept on the instantiation worker between attach
	// and the engine's Instantiate call, giving the freshly started
	// protocol server time to finish initializing.
	SettleDelay time.Duration

	// ReleaseCooldown is waited after the hosted UI is destroyed and
	// before the session id is released, so in-flight GPU work against
	// the old target can drain.
	ReleaseCooldown time.Duration

	// ResumeFrameBurst is how many frame requests a resume fires to
	// recover from a backend restart while hidden.
	ResumeFrameBurst int

	// PumpStopTimeout bounds how long a hide waits for the render pump
	// to acknowledge the stop.
	PumpStopTimeout time.Duration

	// TouchDamping scales relative pointer deltas before injection.
	// Must be in (0, 1]: host touch slop and velocity differ from the
	// pointer resolution hosted toolkits were built for.
	TouchDamping float64

	// IdleInterval is the period of the idle pump driving protocol event
	// processing while any hosted UI is live.
	IdleInterval time.Duration

	// TeardownWorkers bounds the pool running destroy/disconnect
	// sequences, so a hung teardown cannot starve other instances.
	TeardownWorkers int

	// ReadbackTimeout bounds a single GPU readback fence wait.
	ReadbackTimeout time.Duration
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		PoolCapacity:     4,
		PortBase:         6000,
		MinUsableSize:    16,
		SettleDelay:      150 * time.Millisecond,
		ReleaseCooldown:  250 * time.Millisecond,
		ResumeFrameBurst: 3,
		PumpStopTimeout:  500 * time.Millisecond,
		TouchDamping:     0.5,
		IdleInterval:     16 * time.Millisecond,
		TeardownWorkers:  2,
		ReadbackTimeout:  5 * time.Second,
	}
}

// Validate reports the first nonsensical field, if any.
func (o *Options) Validate() error {
	if o.PoolCapacity < 1 {
		return fmt.Errorf("plugview: pool capacity %d, need at least 1", o.PoolCapacity)
	}
	if o.PortBase <= 0 || o.PortBase+o.PoolCapacity > 65535 {
		return fmt.Errorf("plugview: port base %d leaves no room for %d displays", o.PortBase, o.PoolCapacity)
	}
	if o.MinUsableSize < 1 {
		return fmt.Errorf("plugview: minimum usable size %d, need at least 1", o.MinUsableSize)
	}
	if o.TouchDamping <= 0 || o.TouchDamping > 1 {
		return fmt.Errorf("plugview: touch damping %v outside (0, 1]", o.TouchDamping)
	}
	if o.TeardownWorkers < 1 {
		return fmt.Errorf("plugview: teardown workers %d, need at least 1", o.TeardownWorkers)
	}
	if o.SettleDelay < 0 || o.ReleaseCooldown < 0 || o.PumpStopTimeout < 0 {
		return fmt.Errorf("plugview: negative delay")
	}
	if o.ResumeFrameBurst < 1 {
		return fmt.Errorf("plugview: resume frame burst %d, need at least 1", o.ResumeFrameBurst)
	}
	if o.IdleInterval <= 0 {
		return fmt.Errorf("plugview: idle interval must be positive")
	}
	if o.ReadbackTimeout <= 0 {
		return fmt.Errorf("plugview: readback timeout must be positive")
	}
	return nil
}

// Option configures a Manager during creation.
//
// Example:
//
//	mgr, err := plugview.NewManager(engine, driver, device,
//	    plugview.WithPoolCapacity(8),
//	    plugview.WithTouchDamping(0.6))
type Option func(*Options)

// WithOptions replaces the whole option set. Later options still apply on
// top of it.
func WithOptions(o Options) Option {
	return func(dst *Options) { *dst = o }
}

// WithPoolCapacity sets the number of simultaneously live display
// sessions.
func WithPoolCapacity(n int) Option {
	return func(o *Options) { o.PoolCapacity = n }
}

// WithPortBase sets the base TCP port for embedded protocol servers.
func WithPortBase(p int) Option {
	return func(o *Options) { o.PortBase = p }
}

// WithMinUsableSize sets the attach size threshold in pixels.
func WithMinUsableSize(px int) Option {
	return func(o *Options) { o.MinUsableSize = px }
}

// WithSettleDelay sets the pause between attach and Instantiate.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Options) { o.SettleDelay = d }
}

// WithReleaseCooldown sets the drain delay between destroy and release.
func WithReleaseCooldown(d time.Duration) Option {
	return func(o *Options) { o.ReleaseCooldown = d }
}

// WithTouchDamping sets the relative pointer delta scale, in (0, 1].
func WithTouchDamping(f float64) Option {
	return func(o *Options) { o.TouchDamping = f }
}

// WithResumeFrameBurst sets how many frames a resume requests.
func WithResumeFrameBurst(n int) Option {
	return func(o *Options) { o.ResumeFrameBurst = n }
}

// WithIdleInterval sets the idle pump period.
func WithIdleInterval(d time.Duration) Option {
	return func(o *Options) { o.IdleInterval = d }
}

// WithTeardownWorkers bounds the teardown worker pool.
func WithTeardownWorkers(n int) Option {
	return func(o *Options) { o.TeardownWorkers = n }
}
