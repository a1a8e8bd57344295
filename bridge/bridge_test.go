// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package bridge

import (
	"errors"
	"fmt"
	"testing"
)

// fakeDevice negotiates and creates in-memory targets. grant overrides
// Negotiate when set.
type fakeDevice struct {
	grant     func(req CapabilityRequest) (CapabilityRequest, error)
	createErr error
	created   []*fakeTarget
}

func (d *fakeDevice) Negotiate(req CapabilityRequest) (CapabilityRequest, error) {
	if d.grant != nil {
		return d.grant(req)
	}
	granted := req
	granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits = 8, 8, 8, 8
	return granted, nil
}

func (d *fakeDevice) CreateTarget(w, h int, _ CapabilityRequest) (Target, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	t := &fakeTarget{w: w, h: h}
	d.created = append(d.created, t)
	return t, nil
}

type fakeTarget struct {
	w, h      int
	fill      []byte // optional exact frame content, bottom-up RGBA
	destroyed int
}

func (t *fakeTarget) Size() (int, int) { return t.w, t.h }

func (t *fakeTarget) ReadPixels(dst []byte) error {
	if len(dst) != t.w*t.h*4 {
		return fmt.Errorf("dst length %d, target %dx%d", len(dst), t.w, t.h)
	}
	if t.fill != nil {
		copy(dst, t.fill)
		return nil
	}
	for i := range dst {
		dst[i] = byte(i*7 + 3)
	}
	return nil
}

func (t *fakeTarget) Destroy() { t.destroyed++ }

type fakeDrawable struct {
	w, h    int
	puts    []putCall
	flushes int
}

type putCall struct {
	w, h int
	n    int
	pix  []byte
}

func (d *fakeDrawable) Size() (int, int) { return d.w, d.h }

func (d *fakeDrawable) PutImage(pix []byte, w, h int) error {
	d.puts = append(d.puts, putCall{w: w, h: h, n: len(pix), pix: append([]byte(nil), pix...)})
	return nil
}

func (d *fakeDrawable) Flush() error {
	d.flushes++
	return nil
}

func newTestSurface(t *testing.T, w, h int) (*Surface, *fakeDevice, *fakeDrawable) {
	t.Helper()
	dev := &fakeDevice{}
	dr := &fakeDrawable{w: w, h: h}
	s := New(dev, dr)
	if err := s.Configure(); err != nil {
		t.Fatalf("Configure(): %v", err)
	}
	if err := s.Create(); err != nil {
		t.Fatalf("Create(): %v", err)
	}
	return s, dev, dr
}

func TestConfigurePrefersFirstRequest(t *testing.T) {
	s := New(&fakeDevice{}, &fakeDrawable{})
	if err := s.Configure(); err != nil {
		t.Fatalf("Configure(): %v", err)
	}
	if s.caps.StencilBits != 8 {
		t.Errorf("negotiated stencil bits = %d, want 8", s.caps.StencilBits)
	}
}

func TestConfigureFallsBackToMinimal(t *testing.T) {
	dev := &fakeDevice{grant: func(req CapabilityRequest) (CapabilityRequest, error) {
		if req.StencilBits > 0 {
			return CapabilityRequest{}, errors.New("no stencil configs")
		}
		granted := req
		granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits = 8, 8, 8, 8
		return granted, nil
	}}
	s := New(dev, &fakeDrawable{})
	if err := s.Configure(); err != nil {
		t.Fatalf("Configure(): %v", err)
	}
	if s.caps.Name != "minimal" {
		t.Errorf("negotiated request = %q, want minimal", s.caps.Name)
	}
}

func TestConfigureRejectsUnusableChannelDepths(t *testing.T) {
	dev := &fakeDevice{grant: func(req CapabilityRequest) (CapabilityRequest, error) {
		granted := req
		granted.RedBits, granted.GreenBits, granted.BlueBits, granted.AlphaBits = 5, 6, 5, 0
		return granted, nil
	}}
	s := New(dev, &fakeDrawable{})
	if err := s.Configure(); !errors.Is(err, ErrNoUsableConfig) {
		t.Errorf("Configure() with 565 grants = %v, want ErrNoUsableConfig", err)
	}
}

func TestConfigureFailsHardWhenAllRequestsFail(t *testing.T) {
	dev := &fakeDevice{grant: func(CapabilityRequest) (CapabilityRequest, error) {
		return CapabilityRequest{}, errors.New("device lost")
	}}
	s := New(dev, &fakeDrawable{})
	if err := s.Configure(); !errors.Is(err, ErrNoUsableConfig) {
		t.Errorf("Configure() = %v, want ErrNoUsableConfig", err)
	}
}

func TestCreateBeforeConfigure(t *testing.T) {
	s := New(&fakeDevice{}, &fakeDrawable{w: 100, h: 100})
	if err := s.Create(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Create() = %v, want ErrNotConfigured", err)
	}
}

func TestCreateUsesCurrentDrawableSize(t *testing.T) {
	s, dev, _ := newTestSurface(t, 400, 300)
	if w, h := s.Size(); w != 400 || h != 300 {
		t.Errorf("Size() = %dx%d, want 400x300", w, h)
	}
	if len(dev.created) != 1 || dev.created[0].w != 400 || dev.created[0].h != 300 {
		t.Errorf("created targets = %+v, want one 400x300", dev.created)
	}
	if len(s.readBuf) != 400*300*4 || len(s.blitBuf) != 400*300*4 {
		t.Errorf("buffer sizes = %d, %d, want %d", len(s.readBuf), len(s.blitBuf), 400*300*4)
	}
}

func TestCreateZeroSizeDefersAllocation(t *testing.T) {
	dev := &fakeDevice{}
	dr := &fakeDrawable{}
	s := New(dev, dr)
	if err := s.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(); err != nil {
		t.Fatalf("Create() on zero-size drawable: %v", err)
	}
	if len(dev.created) != 0 {
		t.Fatal("target allocated for zero-size drawable")
	}
	if err := s.Enter(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Enter() = %v, want ErrNoTarget", err)
	}
	if err := s.RenderFrame(nil); err != nil {
		t.Errorf("RenderFrame() with no target = %v, want nil (skipped)", err)
	}
	if len(dr.puts) != 0 {
		t.Error("blit happened without a target")
	}

	// First usable resize allocates.
	s.SetPending(100, 50)
	if err := s.Enter(); err != nil {
		t.Fatalf("Enter() after resize: %v", err)
	}
	if w, h := s.Size(); w != 100 || h != 50 {
		t.Errorf("Size() = %dx%d, want 100x50", w, h)
	}
}

func TestEnterAppliesPendingResize(t *testing.T) {
	s, dev, dr := newTestSurface(t, 400, 300)
	s.SetPending(800, 600)
	if err := s.Enter(); err != nil {
		t.Fatalf("Enter(): %v", err)
	}
	if w, h := s.Size(); w != 800 || h != 600 {
		t.Fatalf("Size() after Enter = %dx%d, want 800x600", w, h)
	}
	if dev.created[0].destroyed == 0 {
		t.Error("old target not destroyed on resize")
	}
	if err := s.Leave(); err != nil {
		t.Fatalf("Leave(): %v", err)
	}
	if len(dr.puts) != 1 || dr.puts[0].w != 800 || dr.puts[0].h != 600 {
		t.Errorf("blit = %+v, want one 800x600", dr.puts)
	}
}

func TestLeaveDiscardsStaleFrame(t *testing.T) {
	s, _, dr := newTestSurface(t, 400, 300)
	if err := s.Enter(); err != nil {
		t.Fatal(err)
	}
	// Resize lands while the frame is in flight: its content was
	// rendered at 400x300 and must not reach the drawable.
	s.SetPending(800, 600)
	if err := s.Leave(); err != nil {
		t.Fatalf("Leave(): %v", err)
	}
	if len(dr.puts) != 0 {
		t.Fatalf("stale frame blitted: %+v", dr.puts)
	}
	if w, h := s.Size(); w != 800 || h != 600 {
		t.Errorf("Size() = %dx%d, want 800x600 after discarded frame", w, h)
	}

	// The next frame repaints at the new size.
	if err := s.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	if len(dr.puts) != 1 || dr.puts[0].w != 800 || dr.puts[0].h != 600 {
		t.Errorf("next blit = %+v, want 800x600", dr.puts)
	}
}

func TestBufferSizesTrackEveryResize(t *testing.T) {
	s, _, dr := newTestSurface(t, 400, 300)
	sizes := [][2]int{{400, 300}, {800, 600}, {37, 23}, {1, 1}, {640, 480}}
	for _, wh := range sizes {
		s.SetPending(wh[0], wh[1])
		if err := s.RenderFrame(nil); err != nil {
			t.Fatalf("RenderFrame at %dx%d: %v", wh[0], wh[1], err)
		}
		if len(s.readBuf) != wh[0]*wh[1]*4 || len(s.blitBuf) != wh[0]*wh[1]*4 {
			t.Errorf("buffers at %dx%d: read %d, blit %d, want %d",
				wh[0], wh[1], len(s.readBuf), len(s.blitBuf), wh[0]*wh[1]*4)
		}
	}
	// Every blit that happened carried exactly width*height*4 bytes.
	for i, put := range dr.puts {
		if put.n != put.w*put.h*4 {
			t.Errorf("blit %d: %d bytes for %dx%d, want %d", i, put.n, put.w, put.h, put.w*put.h*4)
		}
	}
}

func TestLeaveWithoutEnter(t *testing.T) {
	s, _, _ := newTestSurface(t, 100, 100)
	if err := s.Leave(); !errors.Is(err, ErrNotEntered) {
		t.Errorf("Leave() without Enter = %v, want ErrNotEntered", err)
	}
}

func TestRenderFrameConvertsAndBlits(t *testing.T) {
	s, dev, dr := newTestSurface(t, 2, 2)
	// Bottom-up RGBA: row 0 of the buffer is the bottom scanline.
	dev.created[0].fill = []byte{
		// bottom row: red, green
		255, 0, 0, 255, 0, 255, 0, 255,
		// top row: blue, white
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	if err := s.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	if dr.flushes != 1 {
		t.Errorf("flushes = %d, want 1", dr.flushes)
	}
	// Top-down BGRA: blue and white first, then red and green, with the
	// R and B lanes swapped.
	want := []byte{
		255, 0, 0, 255, 255, 255, 255, 255,
		0, 0, 255, 255, 0, 255, 0, 255,
	}
	got := dr.puts[0].pix
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("blit byte %d = %d, want %d (full: got %v, want %v)", i, got[i], want[i], got, want)
		}
	}
}

func TestRenderFrameDrawErrorSkipsBlit(t *testing.T) {
	s, _, dr := newTestSurface(t, 100, 100)
	drawErr := errors.New("content render failed")
	if err := s.RenderFrame(func() error { return drawErr }); !errors.Is(err, drawErr) {
		t.Fatalf("RenderFrame() = %v, want draw error", err)
	}
	if len(dr.puts) != 0 {
		t.Error("frame blitted despite draw error")
	}
	// The surface recovers: the next frame renders normally.
	if err := s.RenderFrame(nil); err != nil {
		t.Fatalf("RenderFrame() after draw error: %v", err)
	}
	if len(dr.puts) != 1 {
		t.Errorf("blits after recovery = %d, want 1", len(dr.puts))
	}
}

func TestResizeTargetFailure(t *testing.T) {
	s, dev, _ := newTestSurface(t, 400, 300)
	dev.createErr = errors.New("out of device memory")
	s.SetPending(800, 600)
	if err := s.Enter(); err == nil {
		t.Fatal("Enter() succeeded despite target creation failure")
	}
	if len(s.readBuf) != 0 || len(s.blitBuf) != 0 {
		t.Error("stale buffers kept after failed resize")
	}
}

// convertedTarget delivers pre-converted frames, exercising the
// ConvertedReader short circuit.
type convertedTarget struct {
	fakeTarget
	converted int
	reads     int
}

func (t *convertedTarget) ReadPixels(dst []byte) error {
	t.reads++
	return t.fakeTarget.ReadPixels(dst)
}

func (t *convertedTarget) ReadConverted(dst []byte) error {
	t.converted++
	for i := range dst {
		dst[i] = 0xAB
	}
	return nil
}

func TestLeaveUsesConvertedReader(t *testing.T) {
	dev := &fakeDevice{}
	dr := &fakeDrawable{w: 3, h: 2}
	s := New(dev, dr)
	if err := s.Configure(); err != nil {
		t.Fatal(err)
	}
	// Swap in a converting target before the first frame.
	ct := &convertedTarget{fakeTarget: fakeTarget{w: 3, h: 2}}
	s.target = ct
	s.readBuf = make([]byte, 3*2*4)
	s.blitBuf = make([]byte, 3*2*4)
	s.w, s.h = 3, 2

	if err := s.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	if ct.converted != 1 || ct.reads != 0 {
		t.Errorf("converted = %d, raw reads = %d, want 1 and 0", ct.converted, ct.reads)
	}
	if len(dr.puts) != 1 || dr.puts[0].pix[0] != 0xAB {
		t.Errorf("blit did not carry the converted frame: %+v", dr.puts)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	s, dev, _ := newTestSurface(t, 100, 100)
	s.Destroy()
	s.Destroy()
	if dev.created[0].destroyed != 1 {
		t.Errorf("target destroyed %d times, want 1", dev.created[0].destroyed)
	}
	if err := s.Enter(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Enter() after Destroy = %v, want ErrNoTarget", err)
	}
}
