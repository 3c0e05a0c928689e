package prs

import (
	"fmt"
	"math"
)

// Weights is one named weighting scheme over the five sub-scores. Two
// schemes are in circulation; the active scheme's name is carried in the
// computed Components so downstream consumers can tell which produced a
// given final score.
type Weights struct {
	Name        string
	Technical   float64
	Visibility  float64
	Temporal    float64
	Spatial     float64
	BrandSafety float64
}

// FiveTerm is the current production scheme.
var FiveTerm = Weights{
	Name:        "five_term",
	Technical:   0.25,
	Visibility:  0.25,
	Temporal:    0.20,
	Spatial:     0.20,
	BrandSafety: 0.10,
}

// FourTermLegacy is the earlier four-term formula. It carries no brand
// safety weight; brand safety was gated separately under that scheme.
var FourTermLegacy = Weights{
	Name:       "four_term_legacy",
	Technical:  0.40,
	Visibility: 0.30,
	Temporal:   0.20,
	Spatial:    0.10,
}

// SchemeByName resolves a configured scheme name.
func SchemeByName(name string) (Weights, error) {
	switch name {
	case "", FiveTerm.Name:
		return FiveTerm, nil
	case FourTermLegacy.Name:
		return FourTermLegacy, nil
	}
	return Weights{}, fmt.Errorf("unknown weight scheme %q", name)
}

// Combine folds the five sub-scores into a final score, clamped to [0,100].
func (w Weights) Combine(technical, visibility, temporal, spatial, brandSafety float64) float64 {
	v := technical*w.Technical +
		visibility*w.Visibility +
		temporal*w.Temporal +
		spatial*w.Spatial +
		brandSafety*w.BrandSafety
	return math.Min(100, math.Max(0, v))
}
