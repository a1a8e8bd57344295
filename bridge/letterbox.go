// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package bridge

import (
	"image"

	"golang.org/x/image/draw"
)

// FitRect returns the largest centered rectangle of srcW:srcH aspect that
// fits inside dstW×dstH. Degenerate inputs yield an empty rectangle.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}
	w, h := dstW, srcH*dstW/srcW
	if h > dstH {
		w, h = srcW*dstH/srcH, dstH
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// MapToContent maps a host coordinate through a letterbox rectangle into
// content coordinates. inside is false when the point lands on the bars.
func MapToContent(r image.Rectangle, srcW, srcH int, x, y float64) (cx, cy float64, inside bool) {
	if r.Empty() || srcW <= 0 || srcH <= 0 {
		return 0, 0, false
	}
	if x < float64(r.Min.X) || x >= float64(r.Max.X) ||
		y < float64(r.Min.Y) || y >= float64(r.Max.Y) {
		return 0, 0, false
	}
	cx = (x - float64(r.Min.X)) * float64(srcW) / float64(r.Dx())
	cy = (y - float64(r.Min.Y)) * float64(srcH) / float64(r.Dy())
	return cx, cy, true
}

// LetterboxScale scales a src frame into the fit rectangle of an
// oversized dst buffer and paints the bars opaque black. Both buffers
// hold 4-byte pixels of the same channel order; nearest-neighbor scaling
// never mixes channels, so the order does not matter here. Returns the
// content rectangle for input mapping.
//
// Hosts whose drawable tracks the display size 1:1 never need this; it
// exists for compositors that keep the embedded display at a fixed size
// inside a larger surface.
func LetterboxScale(dst []byte, dstW, dstH int, src []byte, srcW, srcH int) image.Rectangle {
	r := FitRect(srcW, srcH, dstW, dstH)
	if r.Empty() || len(dst) < dstW*dstH*4 || len(src) < srcW*srcH*4 {
		return image.Rectangle{}
	}
	for i := 0; i < dstW*dstH*4; i += 4 {
		dst[i+0] = 0
		dst[i+1] = 0
		dst[i+2] = 0
		dst[i+3] = 0xFF
	}
	si := &image.RGBA{Pix: src, Stride: srcW * 4, Rect: image.Rect(0, 0, srcW, srcH)}
	di := &image.RGBA{Pix: dst, Stride: dstW * 4, Rect: image.Rect(0, 0, dstW, dstH)}
	draw.NearestNeighbor.Scale(di, r, si, si.Rect, draw.Src, nil)
	return r
}
