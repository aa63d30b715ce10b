// Package serialport opens and enumerates serial devices for the rangefinder
// and the motor controller, behind an interface that tests can fake.
package serialport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of a serial port the drivers use.
type Port interface {
	io.ReadWriter
	io.Closer
	// SetReadTimeout bounds each Read; a timed-out Read returns 0, nil.
	SetReadTimeout(timeout time.Duration) error
	// SetDTR drives the DTR line (the rangefinder's motor enable).
	SetDTR(dtr bool) error
	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// Opener opens a port at path.
type Opener func(path string, opts PortOptions) (Port, error)

// Open opens a real serial port.
func Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}

var _ Port = (serial.Port)(nil)
