// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/plugview/bridge"
)

// defaultReadbackTimeout bounds the fence wait for a frame copy unless
// the Device was given an override.
const defaultReadbackTimeout = 5 * time.Second

// alignedPitch returns the row pitch in bytes for a w-pixel RGBA row,
// rounded up to the 256-byte alignment CopyTextureToBuffer requires.
func alignedPitch(w int) int {
	return (w*4 + 255) &^ 255
}

// target is an off-screen render target with a map-readable staging
// buffer. It implements bridge.Target and bridge.ConvertedReader.
type target struct {
	dev    *Device
	device hal.Device
	queue  hal.Queue

	w, h  int
	pitch int

	color       hal.Texture
	colorView   hal.TextureView
	stencil     hal.Texture
	stencilView hal.TextureView
	staging     hal.Buffer

	// Cached readback scratch for stripping the aligned pitch.
	scratch []byte

	// Lazily created GPU conversion resources, fixed to this target's size.
	convSrc    hal.Buffer
	convDst    hal.Buffer
	convParams hal.Buffer
	convBind   hal.BindGroup

	mu        sync.Mutex
	destroyed bool
}

var (
	_ bridge.Target          = (*target)(nil)
	_ bridge.ConvertedReader = (*target)(nil)
)

func newTarget(d *Device, w, h int, withStencil bool) (*target, error) {
	t := &target{
		dev:    d,
		device: d.device,
		queue:  d.queue,
		w:      w,
		h:      h,
		pitch:  alignedPitch(w),
	}
	size := hal.Extent3D{
		Width:              uint32(w),
		Height:             uint32(h),
		DepthOrArrayLayers: 1,
	}

	color, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "plugview_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create color texture: %w", err)
	}
	t.color = color

	colorView, err := t.device.CreateTextureView(color, &hal.TextureViewDescriptor{
		Label: "plugview_color_view",
	})
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("wgpu: create color view: %w", err)
	}
	t.colorView = colorView

	if withStencil {
		stencil, err := t.device.CreateTexture(&hal.TextureDescriptor{
			Label:         "plugview_depth_stencil",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			t.Destroy()
			return nil, fmt.Errorf("wgpu: create depth/stencil texture: %w", err)
		}
		t.stencil = stencil

		stencilView, err := t.device.CreateTextureView(stencil, &hal.TextureViewDescriptor{
			Label: "plugview_depth_stencil_view",
		})
		if err != nil {
			t.Destroy()
			return nil, fmt.Errorf("wgpu: create depth/stencil view: %w", err)
		}
		t.stencilView = stencilView
	}

	staging, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "plugview_staging",
		Size:  uint64(t.pitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	t.staging = staging
	t.scratch = make([]byte, t.pitch*h)

	return t, nil
}

// Size returns the target dimensions in pixels.
func (t *target) Size() (int, int) { return t.w, t.h }

// ColorView returns the color attachment view for render passes.
func (t *target) ColorView() hal.TextureView { return t.colorView }

// ColorTexture returns the color texture.
func (t *target) ColorTexture() hal.Texture { return t.color }

// StencilView returns the depth/stencil view, or nil when the target was
// created without stencil.
func (t *target) StencilView() hal.TextureView { return t.stencilView }

// Clear fills the target with a solid color, clearing the stencil buffer
// to zero when one exists.
func (t *target) Clear(c gputypes.Color) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return fmt.Errorf("wgpu: target destroyed")
	}

	encoder, err := t.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "plugview_clear",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("plugview_clear"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	desc := &hal.RenderPassDescriptor{
		Label: "plugview_clear_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c,
		}},
	}
	if t.stencilView != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              t.stencilView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		}
	}
	rp := encoder.BeginRenderPass(desc)
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer t.device.FreeCommandBuffer(cmdBuf)

	return t.submitAndWait(cmdBuf)
}

// ReadPixels copies the current frame into dst as bottom-up RGBA, the
// layout the render bridge expects from a GL-style surface. dst must hold
// width*height*4 bytes.
func (t *target) ReadPixels(dst []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return fmt.Errorf("wgpu: target destroyed")
	}
	if len(dst) != t.w*t.h*4 {
		return fmt.Errorf("wgpu: readback buffer %d bytes, want %d", len(dst), t.w*t.h*4)
	}

	if err := t.copyToStaging(); err != nil {
		return err
	}
	if err := t.queue.ReadBuffer(t.staging, 0, t.scratch); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}

	// The texture is stored top-down. Strip the aligned pitch and
	// reverse the rows so dst comes out bottom-up.
	rowBytes := t.w * 4
	for y := 0; y < t.h; y++ {
		src := t.scratch[(t.h-1-y)*t.pitch:]
		copy(dst[y*rowBytes:(y+1)*rowBytes], src[:rowBytes])
	}
	return nil
}

// ReadConverted copies the current frame into dst as top-down BGRA, the
// drawable wire layout, performing the channel swap on the GPU when the
// conversion pipeline is available. Falls back to a CPU readback and
// conversion otherwise.
func (t *target) ReadConverted(dst []byte) error {
	if len(dst) != t.w*t.h*4 {
		return fmt.Errorf("wgpu: conversion buffer %d bytes, want %d", len(dst), t.w*t.h*4)
	}

	c := t.dev.converterFor()
	if c == nil {
		// CPU fallback: pitched readback, then flip and swizzle in
		// one pass.
		tmp := make([]byte, t.w*t.h*4)
		if err := t.ReadPixels(tmp); err != nil {
			return err
		}
		bridge.FlipSwizzle(dst, tmp, t.w, t.h)
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return fmt.Errorf("wgpu: target destroyed")
	}
	if err := t.ensureConvertResources(c); err != nil {
		return err
	}

	encoder, err := t.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "plugview_convert",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("plugview_convert"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.color, t.convSrc, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(t.pitch),
			RowsPerImage: uint32(t.h),
		},
		TextureBase: hal.ImageCopyTexture{Texture: t.color, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              uint32(t.w),
			Height:             uint32(t.h),
			DepthOrArrayLayers: 1,
		},
	}})

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "plugview_swizzle",
	})
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, t.convBind, nil)
	pass.Dispatch(uint32((t.w+7)/8), uint32((t.h+7)/8), 1)
	pass.End()

	encoder.CopyBufferToBuffer(t.convDst, t.staging, []hal.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      uint64(t.w) * uint64(t.h) * 4,
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer t.device.FreeCommandBuffer(cmdBuf)

	if err := t.submitAndWait(cmdBuf); err != nil {
		return err
	}
	if err := t.queue.ReadBuffer(t.staging, 0, dst); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}
	return nil
}

// copyToStaging encodes and submits a texture-to-staging copy with the
// aligned row pitch, then waits for completion.
func (t *target) copyToStaging() error {
	encoder, err := t.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "plugview_readback",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("plugview_readback"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	// After rendering the texture sits in attachment layout;
	// CopyTextureToBuffer needs transfer-source. No-op on backends
	// without explicit layouts.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.color, t.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(t.pitch),
			RowsPerImage: uint32(t.h),
		},
		TextureBase: hal.ImageCopyTexture{Texture: t.color, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              uint32(t.w),
			Height:             uint32(t.h),
			DepthOrArrayLayers: 1,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer t.device.FreeCommandBuffer(cmdBuf)

	return t.submitAndWait(cmdBuf)
}

func (t *target) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := t.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer t.device.DestroyFence(fence)

	if err := t.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := t.device.Wait(fence, 1, t.dev.readbackTimeout())
	if err != nil || !ok {
		return fmt.Errorf("wgpu: wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

// ensureConvertResources creates the conversion buffers and bind group on
// first use. They are fixed to the target size, so a resized surface gets
// a fresh target and with it fresh conversion resources.
func (t *target) ensureConvertResources(c *converter) error {
	if t.convBind != nil {
		return nil
	}

	srcSize := uint64(t.pitch) * uint64(t.h)
	convSrc, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "plugview_conv_src",
		Size:  srcSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create conversion source buffer: %w", err)
	}
	t.convSrc = convSrc

	convDst, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "plugview_conv_dst",
		Size:  uint64(t.w) * uint64(t.h) * 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		t.destroyConvertResources()
		return fmt.Errorf("wgpu: create conversion dest buffer: %w", err)
	}
	t.convDst = convDst

	convParams, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "plugview_conv_params",
		Size:  16,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.destroyConvertResources()
		return fmt.Errorf("wgpu: create conversion params buffer: %w", err)
	}
	t.convParams = convParams
	t.queue.WriteBuffer(convParams, 0, convertParams(t.w, t.h, t.pitch))

	bind, err := t.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "plugview_conv_bind",
		Layout: c.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: convParams.NativeHandle(), Offset: 0, Size: 0}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: convSrc.NativeHandle(), Offset: 0, Size: 0}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: convDst.NativeHandle(), Offset: 0, Size: 0}},
		},
	})
	if err != nil {
		t.destroyConvertResources()
		return fmt.Errorf("wgpu: create conversion bind group: %w", err)
	}
	t.convBind = bind
	return nil
}

func (t *target) destroyConvertResources() {
	if t.convBind != nil {
		t.device.DestroyBindGroup(t.convBind)
		t.convBind = nil
	}
	if t.convParams != nil {
		t.device.DestroyBuffer(t.convParams)
		t.convParams = nil
	}
	if t.convDst != nil {
		t.device.DestroyBuffer(t.convDst)
		t.convDst = nil
	}
	if t.convSrc != nil {
		t.device.DestroyBuffer(t.convSrc)
		t.convSrc = nil
	}
}

// Destroy releases all GPU resources. Safe to call more than once and on
// partially constructed targets.
func (t *target) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true

	t.destroyConvertResources()
	if t.staging != nil {
		t.device.DestroyBuffer(t.staging)
		t.staging = nil
	}
	if t.stencilView != nil {
		t.device.DestroyTextureView(t.stencilView)
		t.stencilView = nil
	}
	if t.stencil != nil {
		t.device.DestroyTexture(t.stencil)
		t.stencil = nil
	}
	if t.colorView != nil {
		t.device.DestroyTextureView(t.colorView)
		t.colorView = nil
	}
	if t.color != nil {
		t.device.DestroyTexture(t.color)
		t.color = nil
	}
	t.scratch = nil
}
