package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inscenium-media/scene.render/internal/render"
	"github.com/inscenium-media/scene.render/internal/render/compositor"
	"github.com/inscenium-media/scene.render/internal/render/gate"
	"github.com/inscenium-media/scene.render/internal/render/prs"
	"github.com/inscenium-media/scene.render/internal/render/uncertainty"
)

// Placement binds one descriptor to the scene data needed to evaluate and
// composite it. Creative and Alpha are frame-sized planes with the creative
// already transformed into scene pixel space by an upstream step.
type Placement struct {
	Descriptor *render.PlacementDescriptor
	Surface    *render.Surface
	History    *render.TrackingHistory

	Creative []uint8
	Alpha    []uint8
}

// Evaluated is one placement with its epoch decision attached.
type Evaluated struct {
	Placement  *Placement
	Components prs.Components
	Bounds     uncertainty.Bounds
	Decision   gate.Decision
}

// Config carries the pipeline knobs.
//
// ThresholdSource, when set, is consulted once per decision epoch so the
// monitor's runtime updates take effect on the next epoch. Thresholds is
// the static fallback.
type Config struct {
	Thresholds          gate.Thresholds
	ThresholdSource     func() gate.Thresholds
	DecisionDwellEpochs int
	Device              render.DeviceProfile
	PostStages          compositor.Chain
}

func (c Config) thresholds() gate.Thresholds {
	if c.ThresholdSource != nil {
		return c.ThresholdSource()
	}
	return c.Thresholds
}

// Renderer runs the evaluate-then-composite cycle. Evaluation is
// sequential: each placement's decision is fully resolved before any pixel
// work is issued.
type Renderer struct {
	scorer    Scorer
	estimator Estimator
	device    compositor.Device
	audit     AuditSink
	smoother  *gate.Smoother
	cfg       Config
}

func NewRenderer(scorer Scorer, estimator Estimator, device compositor.Device, audit AuditSink, cfg Config) *Renderer {
	return &Renderer{
		scorer:    scorer,
		estimator: estimator,
		device:    device,
		audit:     audit,
		smoother:  gate.NewSmoother(cfg.DecisionDwellEpochs),
		cfg:       cfg,
	}
}

// EvaluateEpoch scores and gates every placement for one decision epoch.
// Out-of-range placements are suppressed without error. Every decision,
// suppressions included, is emitted to the audit sink.
func (r *Renderer) EvaluateEpoch(ctx context.Context, epoch time.Time, placements []*Placement) []Evaluated {
	thresholds := r.cfg.thresholds()
	out := make([]Evaluated, 0, len(placements))
	for _, p := range placements {
		ev := Evaluated{Placement: p}
		if p.Descriptor.OutOfRange || !p.Descriptor.ActiveAt(epoch) {
			ev.Decision = gate.Decision{
				State:      gate.Suppress,
				Resolution: gate.ResolutionFull,
				Reason:     "placement window out of range",
			}
			r.smoother.Forget(p.Descriptor.ID)
		} else {
			ev.Components = r.scorer.Compute(p.Surface, p.Descriptor, p.History)
			ev.Bounds = r.estimator.Estimate(p.Surface, p.History, r.cfg.Device)
			ev.Decision = r.smoother.Apply(p.Descriptor.ID,
				gate.Evaluate(ev.Components, ev.Bounds, thresholds))
		}
		r.emitAudit(ctx, epoch, ev)
		out = append(out, ev)
	}
	return out
}

func (r *Renderer) emitAudit(ctx context.Context, epoch time.Time, ev Evaluated) {
	if r.audit == nil {
		return
	}
	rec := render.DecisionRecord{
		DecisionID:  uuid.NewString(),
		PlacementID: ev.Placement.Descriptor.ID,
		SurfaceID:   ev.Placement.Descriptor.SurfaceID,
		EpochTime:   epoch,

		State:      ev.Decision.State.String(),
		Opacity:    ev.Decision.Opacity,
		Resolution: string(ev.Decision.Resolution),
		Reason:     ev.Decision.Reason,

		FinalPRS:     ev.Components.FinalPRS,
		WeightScheme: ev.Components.WeightScheme,
		Technical:    ev.Components.Technical,
		Visibility:   ev.Components.Visibility,
		Temporal:     ev.Components.Temporal,
		Spatial:      ev.Components.Spatial,
		BrandSafety:  ev.Components.BrandSafety,

		GeometryWidth:     ev.Bounds.GeometryConfidenceWidth,
		TemporalStability: ev.Bounds.TemporalStability,
		DeviceCapability:  ev.Bounds.DeviceCapability,
	}
	if err := r.audit.RecordDecision(ctx, rec); err != nil {
		render.Opsf("pipeline: audit sink failed for placement=%s: %v", rec.PlacementID, err)
	}
}

// ComposeFrame layers the evaluated placements into one output frame.
//
// Suppressed placements never reach the device; a frame with only
// suppressions returns a copy of the base unchanged. Renderable placements
// composite farthest-first (descending creative depth) so nearer creatives
// overwrite farther ones at shared pixels, each launch chaining the
// previous output in as its base. A device failure aborts only that
// placement; the remaining placements are still attempted.
func (r *Renderer) ComposeFrame(ctx context.Context, base []uint8, depth []float32, w, h int, evals []Evaluated) ([]uint8, error) {
	current := make([]uint8, len(base))
	copy(current, base)

	renderable := make([]Evaluated, 0, len(evals))
	for _, ev := range evals {
		if ev.Decision.State != gate.Suppress {
			renderable = append(renderable, ev)
		}
	}
	sort.SliceStable(renderable, func(i, j int) bool {
		return renderable[i].Placement.Descriptor.CreativeDepth > renderable[j].Placement.Descriptor.CreativeDepth
	})

	var firstErr error
	for _, ev := range renderable {
		out, err := r.compositeOne(ctx, current, depth, w, h, ev)
		if err != nil {
			render.Opsf("pipeline: placement=%s compositing failed, skipping: %v",
				ev.Placement.Descriptor.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		current = out
	}
	return current, firstErr
}

// compositeOne runs one placement's launch against the current frame state,
// applying the degradation policy first.
func (r *Renderer) compositeOne(ctx context.Context, current []uint8, depth []float32, w, h int, ev Evaluated) ([]uint8, error) {
	fb := &compositor.FrameBuffers{
		Width:    w,
		Height:   h,
		Base:     current,
		Creative: ev.Placement.Creative,
		Depth:    depth,
		Alpha:    ev.Placement.Alpha,
		Output:   make([]uint8, len(current)),
	}
	if ev.Decision.Resolution == gate.ResolutionHalf {
		// Degrade on copies; the placement's planes are reused across
		// frames.
		fb.Creative = append([]uint8(nil), fb.Creative...)
		fb.Alpha = append([]uint8(nil), fb.Alpha...)
		compositor.ReduceCreativeDetail(fb)
	}

	params := compositor.Params{
		CreativeDepth: float32(ev.Placement.Descriptor.CreativeDepth),
		Opacity:       ev.Decision.Opacity,
	}
	if err := r.device.Launch(ctx, fb, params); err != nil {
		return nil, err
	}
	if err := r.cfg.PostStages.Apply(ctx, fb, params); err != nil {
		return nil, err
	}
	return fb.Output, nil
}
