package compositor

// ReduceCreativeDetail rewrites the creative and alpha planes at half
// detail ahead of a degraded launch: every 2x2 block of the creative plane
// becomes its box average, and every block of the alpha mask its minimum.
// Min-pooling the mask keeps fully transparent pixels transparent, so the
// alpha-0 identity property holds through degradation. Plane sizes and the
// kernel contract are unchanged.
func ReduceCreativeDetail(fb *FrameBuffers) {
	for y := 0; y < fb.Height; y += 2 {
		for x := 0; x < fb.Width; x += 2 {
			x1 := min(x+2, fb.Width)
			y1 := min(y+2, fb.Height)
			n := uint32((x1 - x) * (y1 - y))

			var sum [4]uint32
			minAlpha := uint8(255)
			for by := y; by < y1; by++ {
				for bx := x; bx < x1; bx++ {
					idx := by*fb.Width + bx
					px := idx * 4
					for c := 0; c < 4; c++ {
						sum[c] += uint32(fb.Creative[px+c])
					}
					if fb.Alpha[idx] < minAlpha {
						minAlpha = fb.Alpha[idx]
					}
				}
			}

			var avg [4]uint8
			for c := 0; c < 4; c++ {
				avg[c] = uint8((sum[c] + n/2) / n)
			}
			for by := y; by < y1; by++ {
				for bx := x; bx < x1; bx++ {
					idx := by*fb.Width + bx
					px := idx * 4
					copy(fb.Creative[px:px+4], avg[:])
					fb.Alpha[idx] = minAlpha
				}
			}
		}
	}
}
