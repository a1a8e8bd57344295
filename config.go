package plugview

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileOptions is the on-disk TOML shape of Options. Delays are stored as
// integer milliseconds so the file stays hand-editable.
type fileOptions struct {
	PoolCapacity      int     `toml:"pool_capacity"`
	PortBase          int     `toml:"port_base"`
	MinUsableSize     int     `toml:"min_usable_size"`
	SettleDelayMS     int64   `toml:"settle_delay_ms"`
	ReleaseCooldownMS int64   `toml:"release_cooldown_ms"`
	ResumeFrameBurst  int     `toml:"resume_frame_burst"`
	PumpStopTimeoutMS int64   `toml:"pump_stop_timeout_ms"`
	TouchDamping      float64 `toml:"touch_damping"`
	IdleIntervalMS    int64   `toml:"idle_interval_ms"`
	TeardownWorkers   int     `toml:"teardown_workers"`
	ReadbackTimeoutMS int64   `toml:"readback_timeout_ms"`
}

func toFileOptions(o Options) fileOptions {
	return fileOptions{
		PoolCapacity:      o.PoolCapacity,
		PortBase:          o.PortBase,
		MinUsableSize:     o.MinUsableSize,
		SettleDelayMS:     o.SettleDelay.Milliseconds(),
		ReleaseCooldownMS: o.ReleaseCooldown.Milliseconds(),
		ResumeFrameBurst:  o.ResumeFrameBurst,
		PumpStopTimeoutMS: o.PumpStopTimeout.Milliseconds(),
		TouchDamping:      o.TouchDamping,
		IdleIntervalMS:    o.IdleInterval.Milliseconds(),
		TeardownWorkers:   o.TeardownWorkers,
		ReadbackTimeoutMS: o.ReadbackTimeout.Milliseconds(),
	}
}

func (f fileOptions) options() Options {
	return Options{
		PoolCapacity:     f.PoolCapacity,
		PortBase:         f.PortBase,
		MinUsableSize:    f.MinUsableSize,
		SettleDelay:      time.Duration(f.SettleDelayMS) * time.Millisecond,
		ReleaseCooldown:  time.Duration(f.ReleaseCooldownMS) * time.Millisecond,
		ResumeFrameBurst: f.ResumeFrameBurst,
		PumpStopTimeout:  time.Duration(f.PumpStopTimeoutMS) * time.Millisecond,
		TouchDamping:     f.TouchDamping,
		IdleInterval:     time.Duration(f.IdleIntervalMS) * time.Millisecond,
		TeardownWorkers:  f.TeardownWorkers,
		ReadbackTimeout:  time.Duration(f.ReadbackTimeoutMS) * time.Millisecond,
	}
}

// LoadOptions reads options from a TOML file. A missing file is not an
// error: the defaults are returned unchanged, so a config file stays
// optional for embedders.
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return o, fmt.Errorf("plugview: read %s: %w", path, err)
	}
	f := toFileOptions(o)
	if err := toml.Unmarshal(data, &f); err != nil {
		return o, fmt.Errorf("plugview: parse %s: %w", path, err)
	}
	o = f.options()
	if err := o.Validate(); err != nil {
		return DefaultOptions(), fmt.Errorf("plugview: %s: %w", path, err)
	}
	return o, nil
}

// SaveOptions writes options to a TOML file, creating or truncating it.
func SaveOptions(path string, o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(toFileOptions(o))
	if err != nil {
		return fmt.Errorf("plugview: marshal options: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("plugview: write %s: %w", path, err)
	}
	return nil
}
