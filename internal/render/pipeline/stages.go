// Package pipeline assembles the render stages into a frame pipeline:
// sidecar descriptors are scored, gated, degraded if needed, and composited
// into frames. It is the composition root for internal/render; none of the
// stage packages import pipeline.
package pipeline

import (
	"context"

	"github.com/inscenium-media/scene.render/internal/render"
	"github.com/inscenium-media/scene.render/internal/render/prs"
	"github.com/inscenium-media/scene.render/internal/render/uncertainty"
)

// Scorer produces PRS components for one placement. *prs.Engine is the
// production implementation.
type Scorer interface {
	Compute(s *render.Surface, p *render.PlacementDescriptor, hist *render.TrackingHistory) prs.Components
}

// Estimator produces uncertainty bounds for one placement.
// *uncertainty.Estimator is the production implementation.
type Estimator interface {
	Estimate(s *render.Surface, hist *render.TrackingHistory, dev render.DeviceProfile) uncertainty.Bounds
}

// AuditSink receives every decision, including suppressions: a placement
// that does not render must still be observable downstream, never a silent
// drop. Sink failures are logged and do not affect rendering.
type AuditSink interface {
	RecordDecision(ctx context.Context, rec render.DecisionRecord) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, rec render.DecisionRecord) error

func (f AuditSinkFunc) RecordDecision(ctx context.Context, rec render.DecisionRecord) error {
	return f(ctx, rec)
}
