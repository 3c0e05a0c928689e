// Package prs computes the Placement Readiness Score: a 0..100 composite of
// five weighted sub-scores (technical, visibility, temporal, spatial, brand
// safety) evaluated per placement per epoch. Scoring is deterministic:
// identical inputs always produce bit-identical output, which golden-scene
// regression tests rely on.
package prs

import (
	"fmt"
	"math"

	"github.com/inscenium-media/scene.render/internal/render"
)

// MissingSubScoreInput records an input a sub-score needed but the surface
// did not carry. It is recoverable: the sub-score defaults to 0 and the
// final score is still computed. Defaulting to 0 rather than an average is
// deliberate so missing data never inflates quality.
type MissingSubScoreInput struct {
	SubScore string
	Input    string
}

func (e *MissingSubScoreInput) Error() string {
	return fmt.Sprintf("sub-score %s: missing input %s", e.SubScore, e.Input)
}

// Components is the scored output for one placement at one epoch. Scores are
// never persisted here; the audit layer owns storage.
type Components struct {
	Technical   float64
	Visibility  float64
	Temporal    float64
	Spatial     float64
	BrandSafety float64
	FinalPRS    float64

	// WeightScheme names the Weights that produced FinalPRS.
	WeightScheme string

	// MissingInputs lists "subscore:input" pairs that forced a sub-score
	// to 0.
	MissingInputs []string
}

// EngineConfig carries the scoring knobs. Zero values select the defaults.
type EngineConfig struct {
	Weights                    Weights
	MinExposureDurationSeconds float64 // default 2.0
	MaxScreenCoverageFraction  float64 // default 0.35
	TargetResolutionPx         float64 // default 512
	MaxMotionPxPerFrame        float64 // default 10
	FrameWidth                 int     // default 1920
	FrameHeight                int     // default 1080
}

// Engine computes PRS components. Safe for concurrent use; it holds only
// configuration.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Weights.Name == "" {
		cfg.Weights = FiveTerm
	}
	if cfg.MinExposureDurationSeconds <= 0 {
		cfg.MinExposureDurationSeconds = 2.0
	}
	if cfg.MaxScreenCoverageFraction <= 0 {
		cfg.MaxScreenCoverageFraction = 0.35
	}
	if cfg.TargetResolutionPx <= 0 {
		cfg.TargetResolutionPx = 512
	}
	if cfg.MaxMotionPxPerFrame <= 0 {
		cfg.MaxMotionPxPerFrame = 10
	}
	if cfg.FrameWidth <= 0 {
		cfg.FrameWidth = 1920
	}
	if cfg.FrameHeight <= 0 {
		cfg.FrameHeight = 1080
	}
	return &Engine{cfg: cfg}
}

// Compute scores one placement on one surface over its tracking history.
func (e *Engine) Compute(s *render.Surface, p *render.PlacementDescriptor, hist *render.TrackingHistory) Components {
	c := Components{WeightScheme: e.cfg.Weights.Name}

	miss := func(sub, input string) {
		err := &MissingSubScoreInput{SubScore: sub, Input: input}
		c.MissingInputs = append(c.MissingInputs, sub+":"+input)
		render.Diagf("prs: surface=%s placement=%s %v", s.SurfaceID, p.ID, err)
	}

	c.Technical = e.technicalScore(s, miss)
	c.Visibility = e.visibilityScore(s, miss)
	c.Temporal = e.temporalScore(p, hist, miss)
	c.Spatial = e.spatialScore(s, miss)
	c.BrandSafety = e.brandSafetyScore(s, miss)

	c.FinalPRS = e.cfg.Weights.Combine(c.Technical, c.Visibility, c.Temporal, c.Spatial, c.BrandSafety)
	render.Tracef("prs: surface=%s placement=%s final=%.2f (T:%.1f V:%.1f Te:%.1f S:%.1f B:%.1f) scheme=%s",
		s.SurfaceID, p.ID, c.FinalPRS, c.Technical, c.Visibility, c.Temporal, c.Spatial, c.BrandSafety, c.WeightScheme)
	return c
}

// technicalScore: planarity 30, area 25, resolution 20, contrast 15,
// detection confidence 10.
func (e *Engine) technicalScore(s *render.Surface, miss func(sub, input string)) float64 {
	if math.IsNaN(s.ContrastRatio) {
		miss("technical", "contrast_ratio")
		return 0
	}
	if math.IsNaN(s.DetectionConfidence) {
		miss("technical", "detection_confidence")
		return 0
	}
	score := math.Min(s.Planarity/0.7, 1) * 30
	score += math.Min(s.AreaM2/10, 1) * 25
	score += math.Min(s.PixelResolution/e.cfg.TargetResolutionPx, 1) * 20
	score += math.Min(s.ContrastRatio, 1) * 15
	score += s.DetectionConfidence * 10
	return math.Min(score, 100)
}

// visibilityScore: 100*(1-occlusion) scaled by viewing angle and on-screen
// area adequacy.
func (e *Engine) visibilityScore(s *render.Surface, miss func(sub, input string)) float64 {
	if math.IsNaN(s.OcclusionProbability) {
		miss("visibility", "occlusion_probability")
		return 0
	}
	if math.IsNaN(s.ViewingAngleDot) {
		miss("visibility", "viewing_angle")
		return 0
	}
	base := 100 * (1 - math.Min(math.Max(s.OcclusionProbability, 0), 1))
	angle := 0.7 + 0.3*math.Abs(s.ViewingAngleDot)
	frac := s.AreaPx / float64(e.cfg.FrameWidth*e.cfg.FrameHeight)
	// Surfaces under 1% of the frame fade out linearly.
	area := math.Min(frac/0.01, 1)
	return math.Min(base*angle*area, 100)
}

// temporalScore: exposure duration 40, motion stability 40, tracking
// coverage 20, with the whole score halved below the minimum exposure
// threshold.
func (e *Engine) temporalScore(p *render.PlacementDescriptor, hist *render.TrackingHistory, miss func(sub, input string)) float64 {
	if hist == nil || hist.Len() == 0 {
		miss("temporal", "tracking_history")
		return 0
	}
	score := math.Min(p.Duration/10, 1) * 40

	motion := meanCornerMotion(hist.Samples())
	score += math.Max(0, 1-motion/e.cfg.MaxMotionPxPerFrame) * 40

	score += math.Min(float64(hist.Len())/float64(hist.Window()), 1) * 20

	if p.Duration < e.cfg.MinExposureDurationSeconds {
		score *= 0.5
	}
	return math.Min(score, 100)
}

// spatialScore: position 25, aspect 20, depth consistency 20, orientation
// 20, scale fit 15. A surface over the screen-coverage cap scores 0.
func (e *Engine) spatialScore(s *render.Surface, miss func(sub, input string)) float64 {
	if math.IsNaN(s.DepthVariance) {
		miss("spatial", "depth_variance")
		return 0
	}
	if math.IsNaN(s.ViewingAngleDot) {
		miss("spatial", "viewing_angle")
		return 0
	}
	frac := s.AreaPx / float64(e.cfg.FrameWidth*e.cfg.FrameHeight)
	if frac > e.cfg.MaxScreenCoverageFraction {
		return 0
	}

	cx, cy := s.CenterPx()
	nx := cx/float64(e.cfg.FrameWidth) - 0.5
	ny := cy/float64(e.cfg.FrameHeight) - 0.5
	score := math.Max(0, 25-math.Hypot(nx, ny)*50)

	ar := s.AspectRatio()
	if ar >= 0.5 && ar <= 2.0 {
		score += 20
	} else if ar > 0 {
		score += math.Max(0, 20-math.Abs(math.Log2(ar))*10)
	}

	score += math.Max(0, 20-s.DepthVariance*40)
	score += math.Abs(s.ViewingAngleDot) * 20
	score += math.Min(frac/e.cfg.MaxScreenCoverageFraction, 1) * 15
	return math.Min(score, 100)
}

// brandSafetyScore passes the externally classified score through.
func (e *Engine) brandSafetyScore(s *render.Surface, miss func(sub, input string)) float64 {
	if math.IsNaN(s.BrandSafetyScore) {
		miss("brand_safety", "brand_safety_score")
		return 0
	}
	return math.Min(math.Max(s.BrandSafetyScore, 0), 100)
}

// meanCornerMotion is the mean per-frame displacement of the tracked
// corners, in pixels, averaged over consecutive sample pairs.
func meanCornerMotion(samples []render.CornerSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(samples); i++ {
		var d float64
		for c := 0; c < 4; c++ {
			d += math.Hypot(
				samples[i].Corners[c][0]-samples[i-1].Corners[c][0],
				samples[i].Corners[c][1]-samples[i-1].Corners[c][1],
			)
		}
		total += d / 4
	}
	return total / float64(len(samples)-1)
}
