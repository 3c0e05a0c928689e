// Package gate decides, per placement per epoch, whether a creative is
// rendered at full quality, rendered degraded, or suppressed. The decision
// is a pure function of the PRS components and the uncertainty bounds
// against configured thresholds; it carries no state across epochs unless a
// dwell smoother is explicitly layered on top.
package gate

import (
	"fmt"
	"math"

	"github.com/inscenium-media/scene.render/internal/render"
	"github.com/inscenium-media/scene.render/internal/render/prs"
	"github.com/inscenium-media/scene.render/internal/render/uncertainty"
)

// State is the gate outcome for one placement.
type State uint8

const (
	Suppress State = iota
	Degraded
	Full
)

func (s State) String() string {
	switch s {
	case Suppress:
		return "suppress"
	case Degraded:
		return "degraded"
	case Full:
		return "full"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Resolution is the working resolution the compositor should use.
type Resolution string

const (
	ResolutionFull Resolution = "full"
	ResolutionHalf Resolution = "half"
)

// Decision is the gate output. A Suppress decision must never reach the
// compositor kernel; the pipeline short-circuits it to the base frame.
type Decision struct {
	State      State
	Opacity    float64
	Resolution Resolution
	Reason     string
}

// Thresholds are the externally supplied gate knobs. Zero values select the
// defaults.
type Thresholds struct {
	RejectThreshold              float64 // PRS floor, default 70.0
	MaxGeometryUncertainty       float64 // default 0.5
	MinTemporalStability         float64 // default 0.6
	MinDeviceCapability          float64 // default 0.4
	DownscaleCapabilityThreshold float64 // below this, degrade to half res; default 0.3
}

func (t Thresholds) withDefaults() Thresholds {
	if t.RejectThreshold <= 0 {
		t.RejectThreshold = 70.0
	}
	if t.MaxGeometryUncertainty <= 0 {
		t.MaxGeometryUncertainty = 0.5
	}
	if t.MinTemporalStability <= 0 {
		t.MinTemporalStability = 0.6
	}
	if t.MinDeviceCapability <= 0 {
		t.MinDeviceCapability = 0.4
	}
	if t.DownscaleCapabilityThreshold <= 0 {
		t.DownscaleCapabilityThreshold = 0.3
	}
	return t
}

// Evaluate produces the decision for one placement at one epoch.
//
// A PRS below the reject threshold suppresses outright. Otherwise any
// uncertainty bound outside its threshold degrades, with opacity lerped
// between 0.3 and 1.0 by how far the worst-offending metric falls short.
// Nominal bounds render full.
func Evaluate(c prs.Components, b uncertainty.Bounds, th Thresholds) Decision {
	th = th.withDefaults()

	if c.FinalPRS < th.RejectThreshold {
		d := Decision{
			State:      Suppress,
			Resolution: ResolutionFull,
			Reason:     fmt.Sprintf("prs %.1f below reject threshold %.1f", c.FinalPRS, th.RejectThreshold),
		}
		render.Diagf("gate: %s (%s)", d.State, d.Reason)
		return d
	}

	type shortfall struct {
		metric string
		frac   float64
	}
	worst := shortfall{}
	consider := func(metric string, frac float64) {
		frac = math.Min(math.Max(frac, 0), 1)
		if frac > worst.frac {
			worst = shortfall{metric: metric, frac: frac}
		}
	}
	consider("geometry_uncertainty",
		(b.GeometryConfidenceWidth-th.MaxGeometryUncertainty)/th.MaxGeometryUncertainty)
	consider("temporal_stability",
		(th.MinTemporalStability-b.TemporalStability)/th.MinTemporalStability)
	consider("device_capability",
		(th.MinDeviceCapability-b.DeviceCapability)/th.MinDeviceCapability)

	if worst.frac > 0 {
		res := ResolutionFull
		if b.DeviceCapability < th.DownscaleCapabilityThreshold {
			res = ResolutionHalf
		}
		d := Decision{
			State:      Degraded,
			Opacity:    1.0 - 0.7*worst.frac,
			Resolution: res,
			Reason:     fmt.Sprintf("%s short by %.0f%%", worst.metric, worst.frac*100),
		}
		render.Diagf("gate: %s opacity=%.2f res=%s (%s)", d.State, d.Opacity, d.Resolution, d.Reason)
		return d
	}

	return Decision{State: Full, Opacity: 1.0, Resolution: ResolutionFull}
}

// Smoother adds a minimum dwell between Full and Degraded so borderline
// scores do not flicker frame to frame. This is a deliberate smoothing
// policy layered on the stateless gate: a newly adopted state is held for
// at least dwell epochs before a switch is accepted. Suppress always passes
// through immediately; an ad that must not show cannot wait out a dwell.
//
// A zero dwell makes the smoother a passthrough. Not safe for concurrent
// use; the pipeline evaluates placements sequentially.
type Smoother struct {
	dwell int
	held  map[string]*heldDecision
}

type heldDecision struct {
	d   Decision
	age int
}

func NewSmoother(dwellEpochs int) *Smoother {
	return &Smoother{dwell: dwellEpochs, held: make(map[string]*heldDecision)}
}

// Apply filters one placement's freshly evaluated decision through the
// dwell policy.
func (s *Smoother) Apply(placementID string, next Decision) Decision {
	if s.dwell <= 0 {
		return next
	}
	if next.State == Suppress {
		delete(s.held, placementID)
		return next
	}
	h, ok := s.held[placementID]
	if !ok {
		s.held[placementID] = &heldDecision{d: next, age: 1}
		return next
	}
	if next.State == h.d.State {
		h.d = next
		h.age++
		return next
	}
	if h.age < s.dwell {
		h.age++
		render.Tracef("gate: holding %s for placement=%s (%d/%d), deferred %s",
			h.d.State, placementID, h.age, s.dwell, next.State)
		return h.d
	}
	s.held[placementID] = &heldDecision{d: next, age: 1}
	return next
}

// Forget drops dwell state for a placement whose window has ended.
func (s *Smoother) Forget(placementID string) {
	delete(s.held, placementID)
}
