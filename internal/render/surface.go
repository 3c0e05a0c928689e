package render

import (
	"math"
	"time"
)

// SurfaceType tags the kind of scene region a surface was detected on.
type SurfaceType string

const (
	SurfaceWall      SurfaceType = "wall"
	SurfaceTable     SurfaceType = "table"
	SurfaceScreen    SurfaceType = "screen"
	SurfaceBillboard SurfaceType = "billboard"
)

// Surface is a planar scene region eligible for placement. It is produced by
// the upstream perception pipeline and is immutable for the frame range it
// was emitted for; the renderer only ever reads it.
//
// Perception-supplied quality signals that may be absent for a given surface
// are NaN when missing. Use NewSurface to get a Surface with the missing
// markers set; a zero-valued Surface would make absent occlusion
// indistinguishable from "not occluded".
type Surface struct {
	SurfaceID string
	Type      SurfaceType

	// CornersPx is the surface quad in frame pixel space, clockwise from
	// top-left.
	CornersPx [4][2]float64

	// Normal is the unit surface normal in world space.
	Normal [3]float64

	Planarity       float64 // 0..1, 1 = perfectly planar
	AreaPx          float64
	AreaM2          float64
	PixelResolution float64 // shorter side of the surface region, pixels
	ObservedFrames  int     // frames the surface has been tracked for

	// Optional perception signals, NaN when not supplied.
	DetectionConfidence  float64 // 0..1
	DepthConfidence      float64 // 0..1, depth-map confidence at the surface
	DepthVariance        float64 // normalized variance of depth across the quad
	OcclusionProbability float64 // 0..1
	ViewingAngleDot      float64 // |normal · view|, 1 = facing camera
	LightingConsistency  float64 // 0..1
	ContrastRatio        float64 // 0..1
	BrandSafetyScore     float64 // 0..100, externally classified
}

// NewSurface returns a Surface with all optional perception signals marked
// missing.
func NewSurface(id string, t SurfaceType) *Surface {
	nan := math.NaN()
	return &Surface{
		SurfaceID:            id,
		Type:                 t,
		DetectionConfidence:  nan,
		DepthConfidence:      nan,
		DepthVariance:        nan,
		OcclusionProbability: nan,
		ViewingAngleDot:      nan,
		LightingConsistency:  nan,
		ContrastRatio:        nan,
		BrandSafetyScore:     nan,
	}
}

// CenterPx returns the centroid of the surface quad in pixel space.
func (s *Surface) CenterPx() (x, y float64) {
	for _, c := range s.CornersPx {
		x += c[0]
		y += c[1]
	}
	return x / 4, y / 4
}

// AspectRatio returns width/height of the surface's pixel-space bounding box,
// or 0 when the quad is degenerate.
func (s *Surface) AspectRatio() float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range s.CornersPx {
		minX = math.Min(minX, c[0])
		maxX = math.Max(maxX, c[0])
		minY = math.Min(minY, c[1])
		maxY = math.Max(maxY, c[1])
	}
	h := maxY - minY
	if h <= 0 {
		return 0
	}
	return (maxX - minX) / h
}

// DeviceTier names a host-environment capability preset.
type DeviceTier string

const (
	DeviceGPU    DeviceTier = "gpu"
	DeviceCPU    DeviceTier = "cpu"
	DeviceMobile DeviceTier = "mobile"
)

// DeviceProfile describes the host environment's available compute headroom.
// Capability is an opaque 0..1 score supplied by the host; the renderer never
// measures it itself.
type DeviceProfile struct {
	Tier       DeviceTier
	Capability float64
}

// DefaultDeviceProfile returns the baseline capability for a tier. Hosts that
// measure real headroom should supply their own profile instead.
func DefaultDeviceProfile(tier DeviceTier) DeviceProfile {
	switch tier {
	case DeviceGPU:
		return DeviceProfile{Tier: DeviceGPU, Capability: 0.9}
	case DeviceMobile:
		return DeviceProfile{Tier: DeviceMobile, Capability: 0.25}
	default:
		return DeviceProfile{Tier: DeviceCPU, Capability: 0.6}
	}
}

// CornerSample is one frame's observation of a surface's tracked corners.
type CornerSample struct {
	FrameTime time.Time
	Corners   [4][2]float64
}

// TrackingHistory is a bounded ring of the most recent corner observations
// for one surface. Both the PRS engine and the uncertainty estimator read it;
// neither mutates samples already pushed.
type TrackingHistory struct {
	max     int
	samples []CornerSample
}

// NewTrackingHistory creates a history retaining the most recent maxFrames
// samples.
func NewTrackingHistory(maxFrames int) *TrackingHistory {
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &TrackingHistory{max: maxFrames}
}

// Push appends a sample, evicting the oldest once the window is full.
func (h *TrackingHistory) Push(s CornerSample) {
	h.samples = append(h.samples, s)
	if len(h.samples) > h.max {
		h.samples = h.samples[len(h.samples)-h.max:]
	}
}

// Samples returns the retained samples, oldest first. The returned slice is
// the live backing store; callers must not modify it.
func (h *TrackingHistory) Samples() []CornerSample {
	return h.samples
}

// Len returns the number of retained samples.
func (h *TrackingHistory) Len() int { return len(h.samples) }

// Window returns the configured window size in frames.
func (h *TrackingHistory) Window() int { return h.max }
