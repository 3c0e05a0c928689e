package render

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSurfaceMarksOptionalSignalsMissing(t *testing.T) {
	t.Parallel()

	s := NewSurface("surf-1", SurfaceWall)
	assert.Equal(t, "surf-1", s.SurfaceID)
	assert.Equal(t, SurfaceWall, s.Type)

	for name, v := range map[string]float64{
		"DetectionConfidence":  s.DetectionConfidence,
		"DepthConfidence":      s.DepthConfidence,
		"DepthVariance":        s.DepthVariance,
		"OcclusionProbability": s.OcclusionProbability,
		"ViewingAngleDot":      s.ViewingAngleDot,
		"LightingConsistency":  s.LightingConsistency,
		"ContrastRatio":        s.ContrastRatio,
		"BrandSafetyScore":     s.BrandSafetyScore,
	} {
		assert.True(t, math.IsNaN(v), "%s should start missing", name)
	}
}

func TestSurfaceGeometry(t *testing.T) {
	t.Parallel()

	s := NewSurface("surf-1", SurfaceBillboard)
	s.CornersPx = [4][2]float64{{100, 50}, {300, 50}, {300, 150}, {100, 150}}

	cx, cy := s.CenterPx()
	assert.Equal(t, 200.0, cx)
	assert.Equal(t, 100.0, cy)
	assert.InDelta(t, 2.0, s.AspectRatio(), 1e-9)

	// Degenerate quad
	s.CornersPx = [4][2]float64{{10, 20}, {30, 20}, {30, 20}, {10, 20}}
	assert.Equal(t, 0.0, s.AspectRatio())
}

func TestDefaultDeviceProfile(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.9, DefaultDeviceProfile(DeviceGPU).Capability)
	assert.Equal(t, 0.6, DefaultDeviceProfile(DeviceCPU).Capability)
	assert.Equal(t, 0.25, DefaultDeviceProfile(DeviceMobile).Capability)
	// Unknown tiers fall back to the CPU preset
	assert.Equal(t, DeviceCPU, DefaultDeviceProfile("tpu").Tier)
}

func TestTrackingHistoryEviction(t *testing.T) {
	t.Parallel()

	h := NewTrackingHistory(3)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Push(CornerSample{FrameTime: base.Add(time.Duration(i) * time.Second)})
	}

	require.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Window())

	samples := h.Samples()
	// Oldest first, with the two earliest evicted
	assert.Equal(t, base.Add(2*time.Second), samples[0].FrameTime)
	assert.Equal(t, base.Add(4*time.Second), samples[2].FrameTime)
}

func TestTrackingHistoryMinimumWindow(t *testing.T) {
	t.Parallel()

	h := NewTrackingHistory(0)
	assert.Equal(t, 1, h.Window())
	h.Push(CornerSample{})
	h.Push(CornerSample{})
	assert.Equal(t, 1, h.Len())
}

func TestPlacementWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p := &PlacementDescriptor{ID: "pl-1", StartDate: start, Duration: 30}

	assert.Equal(t, start.Add(30*time.Second), p.EndDate())

	// Half-open: start inclusive, end exclusive
	assert.True(t, p.ActiveAt(start))
	assert.True(t, p.ActiveAt(start.Add(29*time.Second)))
	assert.False(t, p.ActiveAt(start.Add(30*time.Second)))
	assert.False(t, p.ActiveAt(start.Add(-time.Second)))
}

func TestPlacementOverlapsWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p := &PlacementDescriptor{ID: "pl-1", StartDate: start, Duration: 30}

	assert.True(t, p.OverlapsWindow(start.Add(-10*time.Second), 20))
	assert.True(t, p.OverlapsWindow(start.Add(20*time.Second), 60))
	assert.False(t, p.OverlapsWindow(start.Add(30*time.Second), 10))
	assert.False(t, p.OverlapsWindow(start.Add(-20*time.Second), 20))
}
