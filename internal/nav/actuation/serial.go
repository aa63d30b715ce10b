package actuation

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// ErrWriteFailed reports a short write to the motor controller.
var ErrWriteFailed = errors.New("failed to write to motor controller")

// Direction of the propulsion motors.
type Direction int

const (
	Stopped Direction = iota
	Ahead
	Astern
)

func (d Direction) String() string {
	switch d {
	case Ahead:
		return "F"
	case Astern:
		return "R"
	}
	return "S"
}

// DutyCycle converts a throttle percentage into an 8-bit PWM duty and a
// direction.
func DutyCycle(percent float64) (int, Direction) {
	percent = ClampThrottle(percent)
	duty := int(math.Min(math.Abs(percent), 100) / 100 * 255)
	switch {
	case percent > 0:
		return duty, Ahead
	case percent < 0:
		return duty, Astern
	}
	return 0, Stopped
}

// ServoPulse converts a rudder angle into a servo pulse width in
// microseconds (500 at 0°, 2500 at 180°).
func ServoPulse(deg float64) int {
	return int(math.Round(500 + ClampSteering(deg)/180*2000))
}

// SerialSink drives a motor controller board over a serial line using
// newline-terminated text commands:
//
//	M <F|R|S> <duty 0-255>
//	S <pulse µs>
//	X            (all outputs off)
type SerialSink struct {
	mu   sync.Mutex
	port io.WriteCloser
}

// NewSerialSink wraps an open port.
func NewSerialSink(port io.WriteCloser) *SerialSink {
	return &SerialSink{port: port}
}

func (s *SerialSink) SetThrottle(percent float64) error {
	duty, dir := DutyCycle(percent)
	return s.send(fmt.Sprintf("M %s %d", dir, duty))
}

func (s *SerialSink) SetSteering(deg float64) error {
	return s.send(fmt.Sprintf("S %d", ServoPulse(deg)))
}

// Close turns every output off and closes the port.
func (s *SerialSink) Close() error {
	werr := s.send("X")
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(werr, s.port.Close())
}

func (s *SerialSink) send(command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	command += "\n"
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("motor controller %q: %w", command[:len(command)-1], err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}
