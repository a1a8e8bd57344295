// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package bridge

// FlipSwizzle converts a bottom-up RGBA frame into a top-down BGRA frame
// in one pass over the scanlines: each output row y is read from input
// row h-1-y with byte lanes 0 and 2 swapped and lanes 1 and 3 copied.
// Equivalent, on a little-endian machine, to the packed-word form
// (p & 0xFF00FF00) | ((p >> 16) & 0xFF) | ((p & 0xFF) << 16).
//
// Both buffers must be w*h*4 bytes and must not alias. Valid only for
// 8-bit channels; Configure rejects anything else.
func FlipSwizzle(dst, src []byte, w, h int) {
	stride := w * 4
	for y := 0; y < h; y++ {
		srow := src[(h-1-y)*stride : (h-y)*stride]
		drow := dst[y*stride : (y+1)*stride]
		for x := 0; x < stride; x += 4 {
			drow[x+0] = srow[x+2]
			drow[x+1] = srow[x+1]
			drow[x+2] = srow[x+0]
			drow[x+3] = srow[x+3]
		}
	}
}
