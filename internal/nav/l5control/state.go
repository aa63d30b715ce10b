package l5control

import (
	"encoding/json"
	"fmt"
)

// State is the avoidance state.
type State int

const (
	Cruise State = iota
	Slow
	Avoid
)

func (s State) String() string {
	switch s {
	case Cruise:
		return "CRUISE"
	case Slow:
		return "SLOW"
	case Avoid:
		return "AVOID"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseState converts a name back into a State.
func ParseState(name string) (State, error) {
	switch name {
	case "CRUISE":
		return Cruise, nil
	case "SLOW":
		return Slow, nil
	case "AVOID":
		return Avoid, nil
	}
	return Cruise, fmt.Errorf("unknown state %q", name)
}

// Thresholds are the hysteresis distances in metres. They must satisfy
// AvoidIn < AvoidOut <= SlowIn < SlowOut.
type Thresholds struct {
	AvoidIn  float64 // enter AVOID below this
	AvoidOut float64 // leave AVOID above this
	SlowIn   float64 // enter SLOW below this (and above AvoidOut)
	SlowOut  float64 // leave SLOW above this
}

// DefaultThresholds returns the defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{AvoidIn: 0.50, AvoidOut: 0.60, SlowIn: 0.90, SlowOut: 1.00}
}

// Validate checks the ordering constraint.
func (t Thresholds) Validate() error {
	if !(t.AvoidIn < t.AvoidOut && t.AvoidOut <= t.SlowIn && t.SlowIn < t.SlowOut) {
		return fmt.Errorf("thresholds must satisfy avoid_in < avoid_out <= slow_in < slow_out, got %+v", t)
	}
	return nil
}

// StateMachine tracks the avoidance state. It starts in CRUISE and has no
// terminal state.
type StateMachine struct {
	th    Thresholds
	state State
}

// NewStateMachine creates a state machine in CRUISE.
func NewStateMachine(th Thresholds) *StateMachine {
	return &StateMachine{th: th, state: Cruise}
}

// State returns the current state.
func (m *StateMachine) State() State { return m.state }

// Thresholds returns the configured thresholds.
func (m *StateMachine) Thresholds() Thresholds { return m.th }

// Step advances the machine with this tick's center-sector minimum and
// returns the new state. Two rules run in order, the second seeing the
// result of the first:
//
//  1. not AVOID and c < AvoidIn → AVOID; AVOID and c > AvoidOut → SLOW
//  2. not SLOW and AvoidOut < c < SlowIn → SLOW; SLOW and c > SlowOut → CRUISE
//
// A clear center (+Inf) therefore releases AVOID all the way to CRUISE in
// one tick.
func (m *StateMachine) Step(center float64) State {
	th := m.th
	s := m.state

	if s != Avoid && center < th.AvoidIn {
		s = Avoid
	} else if s == Avoid && center > th.AvoidOut {
		s = Slow
	}

	if s != Slow && center > th.AvoidOut && center < th.SlowIn {
		s = Slow
	} else if s == Slow && center > th.SlowOut {
		s = Cruise
	}

	m.state = s
	return s
}

// Reset returns the machine to CRUISE.
func (m *StateMachine) Reset() { m.state = Cruise }
