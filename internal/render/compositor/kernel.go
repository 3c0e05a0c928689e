package compositor

import "math"

// Params carries the per-launch scalar inputs.
type Params struct {
	// CreativeDepth is the creative's distance from camera in meters.
	// The creative composites at pixels where it is nearer than the
	// scene, or where the scene has no depth data.
	CreativeDepth float32

	// Opacity scales the alpha mask, 0..1. Comes from the gate decision.
	Opacity float64
}

// effectiveAlpha folds the decision opacity into the mask value, rounded to
// the nearest step so opacity 1.0 with a full mask reproduces the creative
// exactly.
func effectiveAlpha(mask uint8, opacity float64) uint32 {
	ea := math.Round(float64(mask) * opacity)
	if ea <= 0 {
		return 0
	}
	if ea >= 255 {
		return 255
	}
	return uint32(ea)
}

// blendChannel blends one 8-bit channel at effective alpha ea. The +127
// rounds to nearest; ea=255 yields the creative value exactly and ea=0 the
// base value exactly.
func blendChannel(creative, base uint8, ea uint32) uint8 {
	return uint8((ea*uint32(creative) + (255-ea)*uint32(base) + 127) / 255)
}

// compositeTile runs the kernel over the half-open pixel rectangle
// [x0,x1) x [y0,y1). Pure per-pixel work, no inter-pixel dependencies.
func compositeTile(fb *FrameBuffers, p Params, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			idx := y*fb.Width + x
			px := idx * 4

			d := fb.Depth[idx]
			shouldComposite := p.CreativeDepth < d || d <= 0

			ea := uint32(0)
			if shouldComposite {
				ea = effectiveAlpha(fb.Alpha[idx], p.Opacity)
			}
			if ea == 0 {
				copy(fb.Output[px:px+4], fb.Base[px:px+4])
				continue
			}
			fb.Output[px+0] = blendChannel(fb.Creative[px+0], fb.Base[px+0], ea)
			fb.Output[px+1] = blendChannel(fb.Creative[px+1], fb.Base[px+1], ea)
			fb.Output[px+2] = blendChannel(fb.Creative[px+2], fb.Base[px+2], ea)
			// Frame transparency is never changed by compositing.
			fb.Output[px+3] = fb.Base[px+3]
		}
	}
}

// Reference runs the kernel single-threaded over the whole frame. It is the
// host-side reference implementation devices are validated against; its
// rounding is the contract.
func Reference(fb *FrameBuffers, p Params) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	compositeTile(fb, p, 0, 0, fb.Width, fb.Height)
	return nil
}
