package l4perception

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
)

// Constants for hazard evaluation
const (
	DefaultFOVDeg         = 120.0 // full forward cone
	DefaultDecisionCap    = 1.6   // metres
	DefaultWallTolerance  = 0.10  // relative
	DefaultLeftCutoffDeg  = -20.0
	DefaultRightCutoffDeg = 20.0
)

// Sector names one of the three forward hazard sectors.
type Sector int

const (
	SectorNone Sector = iota
	SectorLeft
	SectorCenter
	SectorRight
)

func (s Sector) String() string {
	switch s {
	case SectorLeft:
		return "left"
	case SectorCenter:
		return "center"
	case SectorRight:
		return "right"
	default:
		return "none"
	}
}

// HazardSectors holds the minimum clear distance in each forward sector.
// A sector with no qualifying return is +Inf.
type HazardSectors struct {
	Left   float64
	Center float64
	Right  float64
}

// ClearSectors returns sectors with nothing in view.
func ClearSectors() HazardSectors {
	inf := math.Inf(1)
	return HazardSectors{Left: inf, Center: inf, Right: inf}
}

// HazardParams configures the evaluator.
type HazardParams struct {
	FOVDeg         float64 // full cone width; returns must satisfy |angle| < FOVDeg/2
	DecisionCap    float64 // ranges are capped here before taking minima
	WallTolerance  float64 // relative tolerance for baseline matching
	LeftCutoffDeg  float64 // angle < LeftCutoffDeg is the left sector
	RightCutoffDeg float64 // angle > RightCutoffDeg is the right sector
}

// DefaultHazardParams returns the defaults.
func DefaultHazardParams() HazardParams {
	return HazardParams{
		FOVDeg:         DefaultFOVDeg,
		DecisionCap:    DefaultDecisionCap,
		WallTolerance:  DefaultWallTolerance,
		LeftCutoffDeg:  DefaultLeftCutoffDeg,
		RightCutoffDeg: DefaultRightCutoffDeg,
	}
}

// HazardEvaluator reduces a sensor-frame sweep to per-sector minima,
// ignoring returns that match the learned wall baseline.
type HazardEvaluator struct {
	params   HazardParams
	baseline *l3grid.WallBaseline
}

// NewHazardEvaluator creates an evaluator. The baseline may be nil, in
// which case nothing is filtered as static.
func NewHazardEvaluator(params HazardParams, baseline *l3grid.WallBaseline) *HazardEvaluator {
	return &HazardEvaluator{params: params, baseline: baseline}
}

// SetBaseline installs the wall baseline once learning has finished.
func (h *HazardEvaluator) SetBaseline(b *l3grid.WallBaseline) { h.baseline = b }

// Baseline returns the installed wall baseline, or nil.
func (h *HazardEvaluator) Baseline() *l3grid.WallBaseline { return h.baseline }

// Params returns the evaluator parameters.
func (h *HazardEvaluator) Params() HazardParams { return h.params }

// SectorFor classifies an angle in radians. Returns SectorNone outside the
// forward cone.
func (h *HazardEvaluator) SectorFor(angle float64) Sector {
	deg := nav.RadToDeg(nav.WrapAngle(angle))
	if math.Abs(deg) >= h.params.FOVDeg/2 {
		return SectorNone
	}
	switch {
	case deg < h.params.LeftCutoffDeg:
		return SectorLeft
	case deg > h.params.RightCutoffDeg:
		return SectorRight
	default:
		return SectorCenter
	}
}

// Evaluate computes the sector minima over validated sensor-frame samples.
// The baseline check uses the raw range; the decision cap applies after.
func (h *HazardEvaluator) Evaluate(samples []nav.RangeSample) HazardSectors {
	out := ClearSectors()
	for _, s := range samples {
		sector := h.SectorFor(s.Angle)
		if sector == SectorNone {
			continue
		}
		if h.baseline.IsStatic(s.Angle, s.Range, h.params.WallTolerance) {
			continue
		}
		r := math.Min(s.Range, h.params.DecisionCap)
		switch sector {
		case SectorLeft:
			out.Left = math.Min(out.Left, r)
		case SectorCenter:
			out.Center = math.Min(out.Center, r)
		case SectorRight:
			out.Right = math.Min(out.Right, r)
		}
	}
	return out
}
