// Package plugview embeds legacy windowing-protocol plugin UIs inside a
// host application that does not speak the protocol.
//
// # Overview
//
// Each hosted UI gets a private display session: an embedded protocol
// server, an off-screen GPU render target, and a pump that converts the
// rendered frames into the pixel layout of a host-provided drawable and
// blits them there. Host touch input is routed back into the display as
// protocol pointer events. plugview is the lifecycle bridge between these
// pieces; it deliberately implements neither the windowing protocol nor
// the GPU driver.
//
// The central design concern is ordering: the GPU device, the protocol
// connection and the platform drawable are shared with the host renderer,
// and releasing any of them while another goroutine still references it is
// a process-killing fault rather than a recoverable error. plugview is
// therefore biased toward never releasing eagerly: hiding a view only
// pauses its render pump, disposal while a UI is still instantiating is
// deferred until the instantiation worker finishes, and the display id is
// returned to the pool only after the hosted UI has been destroyed.
//
// # Quick Start
//
//	import "github.com/gogpu/plugview"
//
//	mgr, err := plugview.NewManager(engine, driver, device)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	b, err := mgr.Open(ctx, contentIndex)
//	if err != nil {
//	    // pool exhausted: refuse to show the view
//	}
//	// Host framework callbacks:
//	b.SurfaceAvailable(handle, w, h)
//	b.SurfaceResized(w, h)
//	b.Hide() // later: b.Resume()
//	b.Dispose()
//
// # Logging
//
// plugview produces no log output by default. Call [SetLogger] with a
// *slog.Logger to enable it; the logger propagates to all subsystems.
package plugview
