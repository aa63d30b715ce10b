package l5control

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav/l4perception"
)

// Command is one actuation command: throttle in percent (-100..100) and
// steering in servo degrees (0..180, center 90). Steering above center
// turns to starboard.
type Command struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
}

// ControlParams configures the state-to-command mapping.
type ControlParams struct {
	CruiseSpeed float64 // throttle percent in CRUISE
	AvoidSpeed  float64 // throttle percent in AVOID and at the low end of SLOW
	SteerMax    float64 // full deflection from center in degrees
	SteerCenter float64 // servo center in degrees
	SteerAlpha  float64 // EMA smoothing factor in (0, 1]
}

// DefaultControlParams returns the defaults.
func DefaultControlParams() ControlParams {
	return ControlParams{
		CruiseSpeed: 40,
		AvoidSpeed:  30,
		SteerMax:    25,
		SteerCenter: 90,
		SteerAlpha:  0.3,
	}
}

// SafeStop returns the command that halts the vessel with the rudder
// centred.
func (p ControlParams) SafeStop() Command {
	return Command{Throttle: 0, Steering: p.SteerCenter}
}

// Controller turns state and hazard sectors into smoothed commands.
type Controller struct {
	params ControlParams
	th     Thresholds
	ema    float64
}

// NewController creates a controller with steering smoothing seeded at
// center.
func NewController(params ControlParams, th Thresholds) *Controller {
	return &Controller{params: params, th: th, ema: params.SteerCenter}
}

// Params returns the control parameters.
func (c *Controller) Params() ControlParams { return c.params }

// Target returns the raw, unsmoothed command for a state.
func (c *Controller) Target(state State, sectors l4perception.HazardSectors) Command {
	p := c.params
	switch state {
	case Avoid:
		steer := p.SteerCenter - p.SteerMax
		if sectors.Left < sectors.Right {
			steer = p.SteerCenter + p.SteerMax
		}
		return Command{Throttle: p.AvoidSpeed, Steering: steer}
	case Slow:
		throttle := p.AvoidSpeed
		if !math.IsInf(sectors.Center, 0) && !math.IsNaN(sectors.Center) {
			span := c.th.SlowIn - c.th.AvoidOut
			frac := 1.0
			if span > 0 {
				frac = clamp((sectors.Center-c.th.AvoidOut)/span, 0, 1)
			}
			throttle = p.AvoidSpeed + (p.CruiseSpeed-p.AvoidSpeed)*frac
		}
		return Command{Throttle: throttle, Steering: p.SteerCenter}
	default:
		return Command{Throttle: p.CruiseSpeed, Steering: p.SteerCenter}
	}
}

// Command returns the command for this tick with steering passed through
// the EMA: ema ← (1-α)·ema + α·target.
func (c *Controller) Command(state State, sectors l4perception.HazardSectors) Command {
	target := c.Target(state, sectors)
	a := c.params.SteerAlpha
	c.ema = (1-a)*c.ema + a*target.Steering
	return Command{Throttle: target.Throttle, Steering: c.ema}
}

// Smoothed returns the current EMA steering value.
func (c *Controller) Smoothed() float64 { return c.ema }

// Reset recentres the steering EMA.
func (c *Controller) Reset() { c.ema = c.params.SteerCenter }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
