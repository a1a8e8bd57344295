// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

// Package wgpu provides the GPU render-target backend using gogpu/wgpu.
//
// This backend renders hosted UI content into off-screen textures via the
// gogpu/wgpu HAL, which supports Vulkan, Metal, and DX12 depending on the
// platform. It implements bridge.Device and bridge.Target.
//
// # Architecture Overview
//
// Each embedded display gets one off-screen target:
//
//	Display server draw calls -> RGBA8 color texture (+ optional stencil)
//	                                  |
//	                 CopyTextureToBuffer (256-byte row pitch)
//	                                  |
//	              staging buffer -> ReadPixels (bottom-up RGBA)
//
// Key components:
//
//   - Device: owns or borrows a HAL device/queue, negotiates framebuffer
//     capabilities, and creates render targets
//   - target: color texture, optional depth/stencil texture, and a
//     map-readable staging buffer sized for aligned row pitch
//   - converter: optional compute pipeline that performs the channel swap
//     on the GPU before readback, with transparent CPU fallback
//
// # Device Sharing
//
// A Device can run standalone (it creates its own Vulkan instance and
// device) or borrow the HAL device of a larger application through
// NewShared. Shared resources are never destroyed on Close. The Device
// itself exposes HalDevice/HalQueue so several subsystems can chain off
// one GPU device.
//
// # Build Tags
//
// The whole package is excluded by the nogpu build tag. Hosts built with
// -tags nogpu must supply their own bridge.Device implementation.
package wgpu
