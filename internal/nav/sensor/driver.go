// Package sensor provides rangefinder drivers for the navigation core: a
// YDLIDAR-class serial lidar, a remote HTTP source and a simulator, plus
// capability detection that reports missing hardware as a typed result.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/ecoship/internal/nav"
)

// Driver produces one sweep per call. Acquire blocks until a new sweep is
// available or ctx is done, in which case it returns an error wrapping
// ErrTimeout.
type Driver interface {
	Acquire(ctx context.Context) (nav.Sweep, error)
	Close() error
}

// Sentinel errors.
var (
	// ErrTimeout marks a read that did not complete within its deadline.
	ErrTimeout = errors.New("sensor read timed out")
	// ErrUnavailable marks a driver that cannot be opened on this host.
	ErrUnavailable = errors.New("sensor unavailable")
	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("sensor closed")
)

// UnavailableError reports why a driver kind cannot be used.
type UnavailableError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s sensor unavailable: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s sensor unavailable: %s", e.Kind, e.Reason)
}

// Unwrap lets errors.Is match both ErrUnavailable and the cause.
func (e *UnavailableError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnavailable, e.Err}
	}
	return []error{ErrUnavailable}
}

func timeoutErr(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
}
