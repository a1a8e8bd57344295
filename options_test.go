package plugview

import (
	"testing"
	"time"
)

func TestDefaultOptionsValidate(t *testing.T) {
	o := DefaultOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero capacity", func(o *Options) { o.PoolCapacity = 0 }},
		{"negative capacity", func(o *Options) { o.PoolCapacity = -1 }},
		{"zero port base", func(o *Options) { o.PortBase = 0 }},
		{"port range overflow", func(o *Options) { o.PortBase = 65530; o.PoolCapacity = 16 }},
		{"zero usable size", func(o *Options) { o.MinUsableSize = 0 }},
		{"zero damping", func(o *Options) { o.TouchDamping = 0 }},
		{"damping above one", func(o *Options) { o.TouchDamping = 1.5 }},
		{"zero teardown workers", func(o *Options) { o.TeardownWorkers = 0 }},
		{"negative settle delay", func(o *Options) { o.SettleDelay = -time.Millisecond }},
		{"zero frame burst", func(o *Options) { o.ResumeFrameBurst = 0 }},
		{"zero idle interval", func(o *Options) { o.IdleInterval = 0 }},
		{"zero readback timeout", func(o *Options) { o.ReadbackTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	o := DefaultOptions()
	for _, opt := range []Option{
		WithOptions(Options{}),
		WithOptions(DefaultOptions()),
		WithPoolCapacity(8),
		WithPortBase(7100),
		WithMinUsableSize(32),
		WithSettleDelay(10 * time.Millisecond),
		WithReleaseCooldown(20 * time.Millisecond),
		WithTouchDamping(0.75),
		WithResumeFrameBurst(5),
		WithIdleInterval(8 * time.Millisecond),
		WithTeardownWorkers(3),
	} {
		opt(&o)
	}

	if o.PoolCapacity != 8 || o.PortBase != 7100 || o.MinUsableSize != 32 {
		t.Errorf("pool fields not applied: %+v", o)
	}
	if o.SettleDelay != 10*time.Millisecond || o.ReleaseCooldown != 20*time.Millisecond {
		t.Errorf("delays not applied: %+v", o)
	}
	if o.TouchDamping != 0.75 || o.ResumeFrameBurst != 5 {
		t.Errorf("input fields not applied: %+v", o)
	}
	if o.IdleInterval != 8*time.Millisecond || o.TeardownWorkers != 3 {
		t.Errorf("pump fields not applied: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("combined options do not validate: %v", err)
	}
}

func TestWithDampingBoundsCheckedByValidate(t *testing.T) {
	o := DefaultOptions()
	WithTouchDamping(2.0)(&o)
	if err := o.Validate(); err == nil {
		t.Error("out-of-range damping passed validation")
	}
}
