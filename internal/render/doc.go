// Package render holds the shared domain types for the in-scene placement
// renderer: detected surfaces, scheduled placement descriptors, tracking
// history, device profiles, and the decision audit record.
//
// The processing layers live in subpackages and import from here:
//
//	sidecar     → placement metadata decode/inject (EXT-X-DATERANGE)
//	prs         → Placement Readiness Score engine
//	uncertainty → geometry/tracking/device confidence bounds
//	gate        → show / degrade / suppress decision
//	compositor  → depth-tested alpha-blend kernel and device abstraction
//	pipeline    → composition root joining the layers per evaluation epoch
//
// None of the subpackages import pipeline; pipeline imports all of them.
package render
