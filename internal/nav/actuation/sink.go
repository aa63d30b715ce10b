// Package actuation turns control commands into motor and rudder outputs.
package actuation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
)

// Servo and throttle limits.
const (
	MinThrottle = -100.0
	MaxThrottle = 100.0
	MinSteering = 0.0
	MaxSteering = 180.0
)

// Sink accepts actuation commands. Throttle is a signed percentage
// (negative is astern); steering is a servo angle in degrees.
type Sink interface {
	SetThrottle(percent float64) error
	SetSteering(deg float64) error
}

// ClampThrottle limits percent to [-100, 100]. NaN maps to 0.
func ClampThrottle(percent float64) float64 {
	if math.IsNaN(percent) {
		return 0
	}
	return math.Max(MinThrottle, math.Min(MaxThrottle, percent))
}

// ClampSteering limits deg to [0, 180]. NaN maps to centre.
func ClampSteering(deg float64) float64 {
	if math.IsNaN(deg) {
		return (MinSteering + MaxSteering) / 2
	}
	return math.Max(MinSteering, math.Min(MaxSteering, deg))
}

// Apply sends both halves of cmd to s, steering first so the rudder is set
// before thrust changes.
func Apply(s Sink, cmd l5control.Command) error {
	serr := s.SetSteering(cmd.Steering)
	terr := s.SetThrottle(cmd.Throttle)
	if err := errors.Join(serr, terr); err != nil {
		return fmt.Errorf("apply %+v: %w", cmd, err)
	}
	return nil
}

// RecordingSink stores every command it receives. Used for dry runs and
// tests.
type RecordingSink struct {
	mu       sync.Mutex
	commands []l5control.Command
	current  l5control.Command
}

// NewRecordingSink starts at the given resting command.
func NewRecordingSink(rest l5control.Command) *RecordingSink {
	return &RecordingSink{current: rest}
}

func (r *RecordingSink) SetThrottle(percent float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Throttle = ClampThrottle(percent)
	r.commands = append(r.commands, r.current)
	return nil
}

func (r *RecordingSink) SetSteering(deg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Steering = ClampSteering(deg)
	return nil
}

// Current returns the latest output.
func (r *RecordingSink) Current() l5control.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Commands returns the command applied after each throttle update.
func (r *RecordingSink) Commands() []l5control.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]l5control.Command(nil), r.commands...)
}

// LogSink writes commands to the trace log and drives nothing.
type LogSink struct{}

func (LogSink) SetThrottle(percent float64) error {
	nav.Tracef("throttle %.1f%%", ClampThrottle(percent))
	return nil
}

func (LogSink) SetSteering(deg float64) error {
	nav.Tracef("steering %.1f°", ClampSteering(deg))
	return nil
}

var (
	_ Sink = (*RecordingSink)(nil)
	_ Sink = LogSink{}
	_ Sink = (*SerialSink)(nil)
)
