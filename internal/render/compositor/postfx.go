package compositor

import "context"

// PostStage is an extension point for optional post-processing passes over
// the composited output, such as perspective correction or relighting.
// Stages run after the depth-aware blend and see only the output plane;
// they take no part in gating.
type PostStage interface {
	Name() string
	Apply(ctx context.Context, fb *FrameBuffers, p Params) error
}

// Chain applies stages in order, stopping at the first failure.
type Chain []PostStage

func (c Chain) Apply(ctx context.Context, fb *FrameBuffers, p Params) error {
	for _, stage := range c {
		if err := stage.Apply(ctx, fb, p); err != nil {
			return err
		}
	}
	return nil
}
