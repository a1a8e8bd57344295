// Command plugview-info probes the GPU render backend used for embedded
// plugin UIs. It prints the selected adapter, the granted capability
// configurations and device limits, then runs one off-screen
// create/readback/convert cycle and reports where the time goes.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/plugview/backend/wgpu"
	"github.com/gogpu/plugview/bridge"
)

func main() {
	var (
		width   = flag.Int("width", 640, "probe target width")
		height  = flag.Int("height", 480, "probe target height")
		verbose = flag.Bool("verbose", false, "log backend internals to stderr")
	)
	flag.Parse()

	if *verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		wgpu.SetLogger(l)
		bridge.SetLogger(l)
	}

	dev, err := wgpu.New()
	if err != nil {
		log.Fatalf("No usable GPU device: %v", err)
	}
	defer dev.Close()

	log.Printf("adapter: %s", dev.AdapterName())

	limits := gputypes.DefaultLimits()
	log.Printf("max texture dimension 2D: %d", limits.MaxTextureDimension2D)
	log.Printf("max buffer size: %d", limits.MaxBufferSize)

	granted := printCapabilities(dev)
	probeCycle(dev, granted, *width, *height)
}

// printCapabilities walks the default fallback list the render bridge
// uses and reports what the device grants for each entry. Returns the
// first grant, the one a real session would configure with.
func printCapabilities(dev *wgpu.Device) bridge.CapabilityRequest {
	var first bridge.CapabilityRequest
	haveFirst := false
	for _, req := range bridge.DefaultCapabilities() {
		granted, err := dev.Negotiate(req)
		if err != nil {
			log.Printf("capability %q: rejected: %v", req.Name, err)
			continue
		}
		log.Printf("capability %q: rgba %d/%d/%d/%d stencil %d",
			granted.Name, granted.RedBits, granted.GreenBits, granted.BlueBits,
			granted.AlphaBits, granted.StencilBits)
		if !haveFirst {
			first = granted
			haveFirst = true
		}
	}
	if !haveFirst {
		log.Fatal("No capability configuration granted")
	}
	return first
}

// probeCycle runs the per-frame work a live session does once: allocate
// the off-screen target, read the rendered pixels back, convert them to
// the drawable wire layout.
func probeCycle(dev *wgpu.Device, caps bridge.CapabilityRequest, w, h int) {
	start := time.Now()
	tg, err := dev.CreateTarget(w, h, caps)
	if err != nil {
		log.Fatalf("CreateTarget %dx%d: %v", w, h, err)
	}
	defer tg.Destroy()
	log.Printf("create %dx%d target: %v", w, h, time.Since(start))

	raw := make([]byte, w*h*4)
	start = time.Now()
	if err := tg.ReadPixels(raw); err != nil {
		log.Fatalf("ReadPixels: %v", err)
	}
	log.Printf("readback: %v", time.Since(start))

	wire := make([]byte, len(raw))
	start = time.Now()
	if cr, ok := tg.(bridge.ConvertedReader); ok {
		if err := cr.ReadConverted(wire); err != nil {
			log.Fatalf("ReadConverted: %v", err)
		}
		log.Printf("convert (GPU readback path): %v", time.Since(start))
	} else {
		bridge.FlipSwizzle(wire, raw, w, h)
		log.Printf("convert (CPU): %v", time.Since(start))
	}
}
