// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/convert.wgsl
var convertShaderSource string

// converter holds the compute pipeline that swaps the R and B lanes of a
// frame on the GPU. A zero converter marks a failed initialization so the
// CPU fallback is used without retrying every frame.
type converter struct {
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// compileToSPIRV compiles WGSL to SPIR-V words. SPIR-V is little-endian
// 32-bit words.
func compileToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

func newConverter(device hal.Device) (*converter, error) {
	words, err := compileToSPIRV(convertShaderSource)
	if err != nil {
		return nil, fmt.Errorf("wgpu: %w", err)
	}

	c := &converter{}
	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "plugview_convert",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create convert shader: %w", err)
	}
	c.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "plugview_convert_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
		},
	})
	if err != nil {
		c.destroy(device)
		return nil, fmt.Errorf("wgpu: create convert bind group layout: %w", err)
	}
	c.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "plugview_convert_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		c.destroy(device)
		return nil, fmt.Errorf("wgpu: create convert pipeline layout: %w", err)
	}
	c.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "plugview_convert",
		Layout: pipeLayout,
		Compute: hal.ComputeState{
			Module:     shader,
			EntryPoint: "main",
		},
	})
	if err != nil {
		c.destroy(device)
		return nil, fmt.Errorf("wgpu: create convert pipeline: %w", err)
	}
	c.pipeline = pipeline

	logger().Debug("wgpu: conversion pipeline ready", "shader_words", len(words))
	return c, nil
}

// destroy releases pipeline resources in reverse creation order.
func (c *converter) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if c.pipeline != nil {
		device.DestroyComputePipeline(c.pipeline)
		c.pipeline = nil
	}
	if c.pipeLayout != nil {
		device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
	if c.shader != nil {
		device.DestroyShaderModule(c.shader)
		c.shader = nil
	}
}

// convertParams packs the uniform block read by the conversion shader:
// width, height, and source pitch in words, padded to 16 bytes.
func convertParams(w, h, pitchBytes int) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], uint32(w))
	binary.LittleEndian.PutUint32(buf[4:], uint32(h))
	binary.LittleEndian.PutUint32(buf[8:], uint32(pitchBytes/4))
	return buf
}
