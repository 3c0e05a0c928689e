// Package uncertainty derives per-placement confidence bounds from the same
// perception inputs the PRS engine reads, but independently of the PRS
// weighting. The three bounds stay separate so the quality gate can reason
// about which kind of uncertainty dominates.
package uncertainty

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/inscenium-media/scene.render/internal/render"
)

// Bounds is the estimator output for one placement at one epoch.
type Bounds struct {
	// GeometryConfidenceWidth grows when few frames have observed the
	// surface or depth confidence at the surface is low. Unbounded above
	// in principle; nominal values sit well under 0.5.
	GeometryConfidenceWidth float64

	// TemporalStability is 1 minus the normalized frame-to-frame
	// positional variance of the tracked corners, in [0,1].
	TemporalStability float64

	// DeviceCapability is the host-supplied compute headroom, passed
	// through clamped to [0,1].
	DeviceCapability float64
}

// Config carries the estimator knobs. Zero values select the defaults.
type Config struct {
	// WindowFrames is the tracking window the stability estimate reads,
	// default 15.
	WindowFrames int

	// JitterScalePx normalizes positional variance: a per-frame corner
	// displacement spread of this many pixels costs half the stability.
	// Default 2.
	JitterScalePx float64
}

// Estimator computes Bounds. Safe for concurrent use.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) *Estimator {
	if cfg.WindowFrames <= 0 {
		cfg.WindowFrames = 15
	}
	if cfg.JitterScalePx <= 0 {
		cfg.JitterScalePx = 2
	}
	return &Estimator{cfg: cfg}
}

// Estimate derives bounds for one surface from its tracking history and the
// host device profile.
func (e *Estimator) Estimate(s *render.Surface, hist *render.TrackingHistory, dev render.DeviceProfile) Bounds {
	b := Bounds{
		GeometryConfidenceWidth: geometryWidth(s),
		TemporalStability:       e.temporalStability(hist),
		DeviceCapability:        math.Min(math.Max(dev.Capability, 0), 1),
	}
	render.Tracef("uncertainty: surface=%s geom=%.3f stability=%.3f device=%.2f",
		s.SurfaceID, b.GeometryConfidenceWidth, b.TemporalStability, b.DeviceCapability)
	return b
}

// geometryWidth combines depth-map confidence with observation count. A
// surface seen once with no depth confidence gets the full width of 1.0; a
// long-observed, high-confidence surface approaches 0.
func geometryWidth(s *render.Surface) float64 {
	depthConf := s.DepthConfidence
	if math.IsNaN(depthConf) {
		depthConf = 0
	}
	depthConf = math.Min(math.Max(depthConf, 0), 1)
	frames := float64(s.ObservedFrames)
	if frames < 1 {
		frames = 1
	}
	return (1-depthConf)*0.5 + 0.5/math.Sqrt(frames)
}

// temporalStability maps corner jitter variance onto [0,1]. Fewer than
// three samples cannot support a variance estimate and score 0.
func (e *Estimator) temporalStability(hist *render.TrackingHistory) float64 {
	if hist == nil || hist.Len() < 3 {
		return 0
	}
	samples := hist.Samples()
	if n := e.cfg.WindowFrames; hist.Len() > n {
		samples = samples[len(samples)-n:]
	}

	disp := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		var d float64
		for c := 0; c < 4; c++ {
			d += math.Hypot(
				samples[i].Corners[c][0]-samples[i-1].Corners[c][0],
				samples[i].Corners[c][1]-samples[i-1].Corners[c][1],
			)
		}
		disp = append(disp, d/4)
	}

	variance := stat.Variance(disp, nil)
	scale := e.cfg.JitterScalePx * e.cfg.JitterScalePx
	return 1 - variance/(variance+scale)
}
