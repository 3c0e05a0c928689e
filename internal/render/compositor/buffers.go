// Package compositor performs the per-pixel depth test and alpha blend of a
// creative asset onto a base frame. The kernel is a stateless per-pixel
// function: no pixel's output depends on any other pixel's output, so the
// frame divides into independent 16x16 tiles executed in parallel.
package compositor

import (
	"errors"
	"fmt"
)

// ErrBufferSize reports buffers whose lengths do not match the declared
// frame dimensions.
var ErrBufferSize = errors.New("buffer length does not match frame dimensions")

// FrameBuffers holds the five planes for one frame's compositing. The
// buffers are exclusively owned by a single in-flight compositing call;
// layering multiple placements into one frame chains Output into the next
// call's Base rather than mutating shared planes concurrently.
//
// Base, Creative, and Output are RGBA8, 4 bytes per pixel, row major.
// Depth is one float32 per pixel in meters; zero or negative means no depth
// data. Alpha is one byte per pixel masking where the creative applies.
type FrameBuffers struct {
	Width  int
	Height int

	Base     []uint8
	Creative []uint8
	Output   []uint8
	Depth    []float32
	Alpha    []uint8
}

// NewFrameBuffers allocates zeroed planes for a w x h frame.
func NewFrameBuffers(w, h int) *FrameBuffers {
	n := w * h
	return &FrameBuffers{
		Width:    w,
		Height:   h,
		Base:     make([]uint8, n*4),
		Creative: make([]uint8, n*4),
		Output:   make([]uint8, n*4),
		Depth:    make([]float32, n),
		Alpha:    make([]uint8, n),
	}
}

// Validate checks dimensions and plane lengths.
func (fb *FrameBuffers) Validate() error {
	if fb.Width <= 0 || fb.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", fb.Width, fb.Height)
	}
	n := fb.Width * fb.Height
	for _, plane := range []struct {
		name string
		got  int
		want int
	}{
		{"base", len(fb.Base), n * 4},
		{"creative", len(fb.Creative), n * 4},
		{"output", len(fb.Output), n * 4},
		{"depth", len(fb.Depth), n},
		{"alpha", len(fb.Alpha), n},
	} {
		if plane.got != plane.want {
			return fmt.Errorf("%w: %s has %d elements, want %d", ErrBufferSize, plane.name, plane.got, plane.want)
		}
	}
	return nil
}
