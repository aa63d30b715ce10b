package sensor

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/banshee-data/ecoship/internal/security"
)

// DeviceLock is an exclusive advisory lock guarding a serial device, so
// two processes never drive the same rangefinder.
type DeviceLock struct {
	fl *flock.Flock
}

// LockDevice takes the lock for device without blocking.
func LockDevice(dir, device string) (*DeviceLock, error) {
	name := security.SanitizeFilename(device)
	fl := flock.New(filepath.Join(dir, name+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("device %s is locked by another process (%s)", device, fl.Path())
	}
	return &DeviceLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *DeviceLock) Path() string { return l.fl.Path() }

// Release drops the lock. Safe on a nil lock.
func (l *DeviceLock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
