// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/plugview/bridge"
	"github.com/gogpu/plugview/internal/logx"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

var (
	// ErrNoGPU indicates that no usable GPU adapter was found.
	ErrNoGPU = errors.New("wgpu: no usable GPU adapter")

	// ErrClosed indicates the device was already closed.
	ErrClosed = errors.New("wgpu: device closed")
)

var logh = logx.NewHolder()

// SetLogger sets the package logger. Passing nil restores the no-op logger.
func SetLogger(l *slog.Logger) { logh.Set(l) }

func logger() *slog.Logger { return logh.Get() }

// Device creates off-screen render targets on a gogpu/wgpu HAL device.
// It implements bridge.Device.
//
// A Device either owns its HAL resources (New) or borrows them from an
// enclosing application (NewShared, NewFromHAL). Borrowed resources are
// left untouched by Close.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	adapterName string
	conv        *converter
	readback    time.Duration

	externalDevice bool // true when using a shared device (don't destroy on Close)
	closed         bool
}

var _ bridge.Device = (*Device)(nil)

// New creates a standalone Device with its own Vulkan instance, picking a
// discrete or integrated adapter when one is available.
func New() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := &Device{
		instance:    instance,
		device:      openDev.Device,
		queue:       openDev.Queue,
		adapterName: selected.Info.Name,
	}
	logger().Info("wgpu: device initialized (standalone)", "adapter", selected.Info.Name)
	return d, nil
}

// NewShared borrows the HAL device of an external provider. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue, the convention used across gogpu projects.
func NewShared(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	logger().Debug("wgpu: using shared GPU device")
	return NewFromHAL(device, queue), nil
}

// NewFromContext borrows the GPU device of an enclosing gogpu
// application through its typed context provider, usually
// gogpu.App.GPUContextProvider(). The provider must also expose the HAL
// escape hatch; see NewShared.
func NewFromContext(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, fmt.Errorf("wgpu: nil DeviceProvider")
	}
	return NewShared(provider)
}

// NewFromHAL wraps an existing HAL device and queue. The caller keeps
// ownership; Close will not destroy them.
func NewFromHAL(device hal.Device, queue hal.Queue) *Device {
	return &Device{
		device:         device,
		queue:          queue,
		externalDevice: true,
	}
}

// SetLogger propagates the host logger to this package.
func (d *Device) SetLogger(l *slog.Logger) { SetLogger(l) }

// SetReadbackTimeout overrides the per-frame GPU fence wait bound.
// Non-positive values restore the default. The Manager propagates its
// ReadbackTimeout option here.
func (d *Device) SetReadbackTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readback = timeout
}

func (d *Device) readbackTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readback <= 0 {
		return defaultReadbackTimeout
	}
	return d.readback
}

// AdapterName returns the selected adapter's name. Empty for shared
// devices, whose adapter was chosen by the providing application.
func (d *Device) AdapterName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapterName
}

// HalDevice returns the underlying hal.Device so further subsystems can
// share this GPU device.
func (d *Device) HalDevice() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

// HalQueue returns the underlying hal.Queue.
func (d *Device) HalQueue() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue
}

// Negotiate grants a framebuffer configuration for the request. The color
// channels always come back as 8 bits each, matching the RGBA8 texture
// format every HAL backend supports. A stencil request is granted with 8
// bits via a combined depth/stencil texture. Requests for deeper channels
// than the backend renders fail.
func (d *Device) Negotiate(req bridge.CapabilityRequest) (bridge.CapabilityRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return bridge.CapabilityRequest{}, ErrClosed
	}
	if req.RedBits > 8 || req.GreenBits > 8 || req.BlueBits > 8 || req.AlphaBits > 8 {
		return bridge.CapabilityRequest{}, fmt.Errorf(
			"wgpu: %q requests channel depth beyond 8 bits", req.Name)
	}
	granted := req
	granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits = 8, 8, 8, 8
	if req.StencilBits > 0 {
		granted.StencilBits = 8
	}
	return granted, nil
}

// CreateTarget creates an off-screen render target. The caps value should
// come from a prior Negotiate call; a non-zero StencilBits adds a
// depth/stencil texture to the target.
func (d *Device) CreateTarget(w, h int, caps bridge.CapabilityRequest) (bridge.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("wgpu: invalid target size %dx%d", w, h)
	}
	return newTarget(d, w, h, caps.StencilBits > 0)
}

// converterFor lazily initializes the GPU conversion pipeline. Returns nil
// when the pipeline cannot be built; callers fall back to CPU conversion.
func (d *Device) converterFor() *converter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if d.conv == nil {
		c, err := newConverter(d.device)
		if err != nil {
			logger().Warn("wgpu: GPU conversion unavailable, using CPU path", "error", err)
			d.conv = &converter{} // remember the failure
		} else {
			d.conv = c
		}
	}
	if d.conv.pipeline == nil {
		return nil
	}
	return d.conv
}

// Close releases the conversion pipeline and, for standalone devices, the
// HAL device and instance. Targets must be destroyed first. Safe to call
// more than once.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	if d.conv != nil {
		d.conv.destroy(d.device)
		d.conv = nil
	}
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.instance = nil
	d.queue = nil
	logger().Debug("wgpu: device closed")
}
