// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package embedded exercises the full embedding path through the public
// plugview API, with in-process doubles standing in for every external
// boundary.
//
// The doubles replace the three contracts a real host supplies:
//
//   - StubEngine for plugview.Engine (the plugin engine)
//   - MemDriver / MemConn for display.ServerDriver (the protocol server)
//   - SoftDevice for bridge.Device (the GPU)
//
// Each double journals the calls it receives, so scenario tests can assert
// cross-component ordering: that a hosted UI is instantiated before its
// first frame, destroyed before its connection closes, and so on. Hosts
// writing their own embedding tests can reuse the doubles directly;
// nothing in this package touches a real server, GPU, or plugin.
//
// The scenario tests in this package are the integration complement to the
// unit tests that live next to each subsystem.
package embedded
