package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inscenium-media/scene.render/internal/render/prs"
	"github.com/inscenium-media/scene.render/internal/render/uncertainty"
)

func nominalBounds() uncertainty.Bounds {
	return uncertainty.Bounds{
		GeometryConfidenceWidth: 0.1,
		TemporalStability:       0.9,
		DeviceCapability:        0.9,
	}
}

func scoredComponents(final float64) prs.Components {
	return prs.Components{FinalPRS: final, WeightScheme: "five_term"}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("nominal scores render full", func(t *testing.T) {
		t.Parallel()
		d := Evaluate(scoredComponents(91.75), nominalBounds(), Thresholds{})
		assert.Equal(t, Full, d.State)
		assert.Equal(t, 1.0, d.Opacity)
		assert.Equal(t, ResolutionFull, d.Resolution)
	})

	t.Run("prs below reject threshold suppresses", func(t *testing.T) {
		t.Parallel()
		d := Evaluate(scoredComponents(62), nominalBounds(), Thresholds{})
		assert.Equal(t, Suppress, d.State)
		assert.NotEmpty(t, d.Reason)
	})

	t.Run("jittery tracking degrades when prs is still high", func(t *testing.T) {
		t.Parallel()
		b := nominalBounds()
		b.TemporalStability = 0.3
		d := Evaluate(scoredComponents(91.75), b, Thresholds{})
		require.Equal(t, Degraded, d.State)
		assert.Contains(t, d.Reason, "temporal_stability")
	})

	t.Run("degraded opacity stays within the lerp band", func(t *testing.T) {
		t.Parallel()
		for _, stability := range []float64{0.0, 0.1, 0.3, 0.59} {
			b := nominalBounds()
			b.TemporalStability = stability
			d := Evaluate(scoredComponents(85), b, Thresholds{})
			require.Equal(t, Degraded, d.State, "stability=%v", stability)
			assert.GreaterOrEqual(t, d.Opacity, 0.3)
			assert.Less(t, d.Opacity, 1.0)
		}
	})

	t.Run("worst shortfall drives opacity", func(t *testing.T) {
		t.Parallel()
		// Stability at zero is a 100% shortfall, opacity floors at 0.3.
		b := nominalBounds()
		b.TemporalStability = 0
		d := Evaluate(scoredComponents(85), b, Thresholds{})
		assert.InDelta(t, 0.3, d.Opacity, 1e-9)
	})

	t.Run("wide geometry uncertainty degrades", func(t *testing.T) {
		t.Parallel()
		b := nominalBounds()
		b.GeometryConfidenceWidth = 0.8
		d := Evaluate(scoredComponents(85), b, Thresholds{})
		require.Equal(t, Degraded, d.State)
		assert.Contains(t, d.Reason, "geometry_uncertainty")
	})

	t.Run("very low device capability halves resolution", func(t *testing.T) {
		t.Parallel()
		b := nominalBounds()
		b.DeviceCapability = 0.2
		d := Evaluate(scoredComponents(85), b, Thresholds{})
		require.Equal(t, Degraded, d.State)
		assert.Equal(t, ResolutionHalf, d.Resolution)
	})

	t.Run("marginal device capability keeps full resolution", func(t *testing.T) {
		t.Parallel()
		b := nominalBounds()
		b.DeviceCapability = 0.35
		d := Evaluate(scoredComponents(85), b, Thresholds{})
		require.Equal(t, Degraded, d.State)
		assert.Equal(t, ResolutionFull, d.Resolution)
	})

	t.Run("explicit thresholds override defaults", func(t *testing.T) {
		t.Parallel()
		th := Thresholds{RejectThreshold: 50}
		d := Evaluate(scoredComponents(62), nominalBounds(), th)
		assert.Equal(t, Full, d.State)
	})
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "suppress", Suppress.String())
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "full", Full.String())
}

func TestSmoother(t *testing.T) {
	t.Parallel()

	full := Decision{State: Full, Opacity: 1, Resolution: ResolutionFull}
	degraded := Decision{State: Degraded, Opacity: 0.6, Resolution: ResolutionFull}
	suppress := Decision{State: Suppress}

	t.Run("zero dwell is a passthrough", func(t *testing.T) {
		t.Parallel()
		s := NewSmoother(0)
		assert.Equal(t, full, s.Apply("pl-1", full))
		assert.Equal(t, degraded, s.Apply("pl-1", degraded))
	})

	t.Run("state change is held until dwell expires", func(t *testing.T) {
		t.Parallel()
		s := NewSmoother(3)
		assert.Equal(t, Full, s.Apply("pl-1", full).State)
		// The flip to Degraded arrives one epoch in; Full is held.
		assert.Equal(t, Full, s.Apply("pl-1", degraded).State)
		assert.Equal(t, Full, s.Apply("pl-1", degraded).State)
		// Dwell satisfied, the switch is accepted.
		assert.Equal(t, Degraded, s.Apply("pl-1", degraded).State)
	})

	t.Run("suppress is never delayed", func(t *testing.T) {
		t.Parallel()
		s := NewSmoother(10)
		assert.Equal(t, Full, s.Apply("pl-1", full).State)
		assert.Equal(t, Suppress, s.Apply("pl-1", suppress).State)
	})

	t.Run("placements are held independently", func(t *testing.T) {
		t.Parallel()
		s := NewSmoother(3)
		s.Apply("pl-1", full)
		assert.Equal(t, Degraded, s.Apply("pl-2", degraded).State)
	})
}
