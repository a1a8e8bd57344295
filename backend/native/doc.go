// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build darwin || linux || ios || android

// Package native binds a plugin engine that lives in a shared library,
// without cgo.
//
// The usual arrangement is a C or C++ audio engine that owns the hosted
// plugin instances while Go runs only the embedding layer. Such a host
// builds its engine once as a shared object exporting the plugview_*
// entry points, loads it with Load, and hands the resulting Engine to
// plugview.NewManager:
//
//	engine, err := native.Load("libhostengine.so")
//	if err != nil {
//		return err
//	}
//	mgr, err := plugview.NewManager(engine, driver, device)
//
// All calls forward through ebitengine/purego trampolines, so the module
// cross-compiles as plain Go. Entry points that report a status code come
// back as Go errors; an engine-side "no such instance" maps to
// plugview.ErrNoInstance so callers can test for it with errors.Is.
//
// The package is Unix-only because purego's Dlopen is unavailable on
// Windows. Windows hosts implement plugview.Engine directly instead.
package native
