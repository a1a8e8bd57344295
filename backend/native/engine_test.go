// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build darwin || linux || ios || android

package native

import (
	"errors"
	"strings"
	"testing"
	"unsafe"

	"github.com/gogpu/plugview"
)

// fakeEngine wires an Engine with in-process trampolines so the
// conversion layer can be exercised without a shared library.
func fakeEngine() (*Engine, *callLog) {
	log := &callLog{}
	e := &Engine{path: "libfake.so"}
	e.fnBeginInstantiate = func(displayID, contentIndex int32) {
		log.add("begin", int(displayID), int(contentIndex))
	}
	e.fnInstantiate = func(contentIndex, displayID int32, root uint32) int32 {
		log.add("instantiate", int(contentIndex), int(displayID), int(root))
		return log.rc
	}
	e.fnDestroy = func(contentIndex int32) {
		log.add("destroy", int(contentIndex))
	}
	e.fnPumpIdle = func() int32 { return log.rc }
	e.fnRequestFrame = func(displayID int32) {
		log.add("frame", int(displayID))
	}
	e.fnWidgetAt = func(displayID, x, y int32) int32 {
		log.add("widget", int(displayID), int(x), int(y))
		return log.rc
	}
	e.fnNaturalSize = func(contentIndex, displayID int32, wOut, hOut uintptr) int32 {
		*(*uint32)(unsafe.Pointer(wOut)) = log.natW
		*(*uint32)(unsafe.Pointer(hOut)) = log.natH
		return log.rc
	}
	e.fnUIScale = func(displayID int32) float64 { return log.scale }
	e.fnDeliverFile = func(contentIndex int32, propertyURI, path string) int32 {
		log.add("deliver", int(contentIndex))
		log.strA, log.strB = propertyURI, path
		return log.rc
	}
	e.fnNotifyParameter = func(contentIndex int32, symbol string, value float32) int32 {
		log.add("param", int(contentIndex))
		log.strA = symbol
		log.f32 = value
		return log.rc
	}
	return e, log
}

type callLog struct {
	calls []string
	args  [][]int

	rc         int32
	natW, natH uint32
	scale      float64
	strA, strB string
	f32        float32
}

func (l *callLog) add(name string, args ...int) {
	l.calls = append(l.calls, name)
	l.args = append(l.args, args)
}

func (l *callLog) last() (string, []int) {
	if len(l.calls) == 0 {
		return "", nil
	}
	return l.calls[len(l.calls)-1], l.args[len(l.args)-1]
}

func TestStatusErrMapping(t *testing.T) {
	if err := statusErr("op", statusOK); err != nil {
		t.Fatalf("statusOK mapped to error: %v", err)
	}
	err := statusErr("deliver file to content 3", statusNoInstance)
	if !errors.Is(err, plugview.ErrNoInstance) {
		t.Fatalf("statusNoInstance does not wrap ErrNoInstance: %v", err)
	}
	if err := statusErr("op", statusBadArg); err == nil || !strings.Contains(err.Error(), "bad argument") {
		t.Fatalf("statusBadArg = %v, want bad-argument error", err)
	}
	if err := statusErr("op", 42); err == nil || !strings.Contains(err.Error(), "status 42") {
		t.Fatalf("unknown status = %v, want status code in message", err)
	}
}

func TestInstantiateForwardsArgumentsAndStatus(t *testing.T) {
	e, log := fakeEngine()

	e.BeginInstantiate(2, 7)
	if name, args := log.last(); name != "begin" || args[0] != 2 || args[1] != 7 {
		t.Fatalf("BeginInstantiate forwarded as %s%v", name, args)
	}

	if err := e.Instantiate(7, 2, 0xab); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if name, args := log.last(); name != "instantiate" || args[0] != 7 || args[1] != 2 || args[2] != 0xab {
		t.Fatalf("Instantiate forwarded as %s%v", name, args)
	}

	log.rc = statusNoInstance
	err := e.Instantiate(7, 2, 0xab)
	if !errors.Is(err, plugview.ErrNoInstance) {
		t.Fatalf("failing Instantiate = %v, want ErrNoInstance", err)
	}
}

func TestHitTestAndPumpMapNonZeroToTrue(t *testing.T) {
	e, log := fakeEngine()

	if e.HitTest(1, 10, 20) {
		t.Fatal("HitTest true with zero return")
	}
	if _, args := log.last(); args[0] != 1 || args[1] != 10 || args[2] != 20 {
		t.Fatalf("HitTest forwarded %v", args)
	}
	log.rc = 1
	if !e.HitTest(1, 10, 20) {
		t.Fatal("HitTest false with non-zero return")
	}
	if !e.PumpIdle() {
		t.Fatal("PumpIdle false with non-zero return")
	}
	log.rc = 0
	if e.PumpIdle() {
		t.Fatal("PumpIdle true with zero return")
	}
}

func TestNaturalSizeOutParams(t *testing.T) {
	e, log := fakeEngine()
	log.natW, log.natH = 612, 408

	w, h, ok := e.NaturalSize(3, 0)
	if !ok || w != 612 || h != 408 {
		t.Fatalf("NaturalSize = %d,%d,%v, want 612,408,true", w, h, ok)
	}

	log.rc = statusNoInstance
	if _, _, ok := e.NaturalSize(3, 0); ok {
		t.Fatal("NaturalSize ok despite engine status")
	}

	log.rc = statusOK
	log.natW, log.natH = 0, 0
	if _, _, ok := e.NaturalSize(3, 0); ok {
		t.Fatal("NaturalSize ok despite zero dimensions")
	}
}

func TestScaleFactorClampsNonPositive(t *testing.T) {
	e, log := fakeEngine()

	log.scale = 1.5
	if got := e.ScaleFactor(0); got != 1.5 {
		t.Fatalf("ScaleFactor = %v, want 1.5", got)
	}
	log.scale = 0
	if got := e.ScaleFactor(0); got != 1.0 {
		t.Fatalf("ScaleFactor with zero report = %v, want 1.0", got)
	}
	log.scale = -2
	if got := e.ScaleFactor(0); got != 1.0 {
		t.Fatalf("ScaleFactor with negative report = %v, want 1.0", got)
	}
}

func TestDeliveryForwardsStrings(t *testing.T) {
	e, log := fakeEngine()

	if err := e.DeliverFile(4, "urn:model", "/tmp/model.bin"); err != nil {
		t.Fatalf("DeliverFile: %v", err)
	}
	if log.strA != "urn:model" || log.strB != "/tmp/model.bin" {
		t.Fatalf("DeliverFile strings = %q, %q", log.strA, log.strB)
	}

	if err := e.NotifyParameter(4, "gain", 0.75); err != nil {
		t.Fatalf("NotifyParameter: %v", err)
	}
	if log.strA != "gain" || log.f32 != 0.75 {
		t.Fatalf("NotifyParameter forwarded %q=%v", log.strA, log.f32)
	}

	log.rc = statusNoInstance
	if err := e.DeliverFile(4, "urn:model", "/tmp/model.bin"); !errors.Is(err, plugview.ErrNoInstance) {
		t.Fatalf("DeliverFile without instance = %v, want ErrNoInstance", err)
	}
}

func TestVersionOptional(t *testing.T) {
	e, _ := fakeEngine()
	if got := e.Version(); got != "" {
		t.Fatalf("Version without symbol = %q, want empty", got)
	}
	e.fnVersion = func() string { return "2.4.1" }
	if got := e.Version(); got != "2.4.1" {
		t.Fatalf("Version = %q, want 2.4.1", got)
	}
}

func TestCloseIdempotentWithoutHandle(t *testing.T) {
	e, _ := fakeEngine()
	// No dlopen handle; Close must be a no-op both times.
	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLoadMissingLibrary(t *testing.T) {
	_, err := Load("/nonexistent/libplugview-engine.so")
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("Load of missing library = %v, want ErrLoad", err)
	}
}
