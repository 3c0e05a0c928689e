package render

import "time"

// PlacementDescriptor is one decoded placement opportunity from the sidecar
// stream. It carries everything the renderer needs to decide on and composite
// one creative onto one surface for one time window.
type PlacementDescriptor struct {
	ID            string
	SurfaceID     string
	StartDate     time.Time
	Duration      float64 // seconds
	PRSHint       float64 // score the packager computed at publish time
	Placement     string  // e.g. "billboard", "product", "overlay"
	CreativeDepth float64 // meters from camera; 0 = pin in front of everything

	// OutOfRange marks a descriptor whose window does not intersect the
	// epoch being evaluated. It is excluded from compositing but is not an
	// error and is preserved on re-encode.
	OutOfRange bool

	// Attrs holds vendor attributes we decoded but do not interpret, keyed
	// by attribute name, preserved verbatim on re-encode.
	Attrs map[string]string
}

// EndDate returns the exclusive end of the placement window.
func (p *PlacementDescriptor) EndDate() time.Time {
	return p.StartDate.Add(time.Duration(p.Duration * float64(time.Second)))
}

// ActiveAt reports whether the placement window covers t. The window is
// half-open: [StartDate, StartDate+Duration).
func (p *PlacementDescriptor) ActiveAt(t time.Time) bool {
	if t.Before(p.StartDate) {
		return false
	}
	return t.Before(p.EndDate())
}

// OverlapsWindow reports whether the placement window intersects
// [start, start+durSeconds).
func (p *PlacementDescriptor) OverlapsWindow(start time.Time, durSeconds float64) bool {
	end := start.Add(time.Duration(durSeconds * float64(time.Second)))
	return p.StartDate.Before(end) && start.Before(p.EndDate())
}

// DecisionRecord is the audit form of one gate decision for one placement at
// one epoch. Fields are flat strings and numbers so the storage and reporting
// layers need no knowledge of gate internals.
type DecisionRecord struct {
	DecisionID  string
	PlacementID string
	SurfaceID   string
	EpochTime   time.Time

	State      string // "full", "degraded", "suppress"
	Opacity    float64
	Resolution string // "full", "half"
	Reason     string

	FinalPRS     float64
	WeightScheme string
	Technical    float64
	Visibility   float64
	Temporal     float64
	Spatial      float64
	BrandSafety  float64

	GeometryWidth     float64
	TemporalStability float64
	DeviceCapability  float64
}
