package l1scan

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
)

// DefaultMinRange is the closest return the rangefinder reports reliably.
const DefaultMinRange = 0.05

// Validator drops samples whose range is non-finite or outside
// (MinRange, MaxRange]. A return at exactly MinRange is inside the blind
// zone. A MaxRange of +Inf keeps every finite return above MinRange.
type Validator struct {
	MinRange float64
	MaxRange float64
}

// NewValidator returns a validator for the given bounds.
func NewValidator(minRange, maxRange float64) Validator {
	return Validator{MinRange: minRange, MaxRange: maxRange}
}

// NewMapValidator returns the validator used for mapping and odometry:
// returns beyond the map half-extent can never land in the grid.
func NewMapValidator(minRange, mapSize float64) Validator {
	return Validator{MinRange: minRange, MaxRange: mapSize / 2}
}

// NewHazardValidator returns the validator feeding the hazard evaluator,
// which applies its own decision cap.
func NewHazardValidator(minRange float64) Validator {
	return Validator{MinRange: minRange, MaxRange: math.Inf(1)}
}

// Valid reports whether a single range passes the filter.
func (v Validator) Valid(r float64) bool {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return false
	}
	return r > v.MinRange && r <= v.MaxRange
}

// Validate returns the samples that pass the filter, with angles wrapped to
// (-π, π]. It never fails: an empty or entirely invalid sweep yields an
// empty, non-nil slice. The input is not modified.
func (v Validator) Validate(samples []nav.RangeSample) []nav.RangeSample {
	out := make([]nav.RangeSample, 0, len(samples))
	for _, s := range samples {
		if !v.Valid(s.Range) || math.IsNaN(s.Angle) || math.IsInf(s.Angle, 0) {
			continue
		}
		out = append(out, nav.RangeSample{Angle: nav.WrapAngle(s.Angle), Range: s.Range})
	}
	return out
}
