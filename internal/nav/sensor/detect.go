package sensor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/serialport"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

// Kind names a driver implementation.
type Kind string

const (
	KindYDLidar Kind = "ydlidar"
	KindHTTP    Kind = "http"
	KindSim     Kind = "sim"
	// KindAuto prefers the serial lidar and falls back to the simulator.
	KindAuto Kind = "auto"
)

// ParseKind validates a driver name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindYDLidar, KindHTTP, KindSim, KindAuto:
		return k, nil
	}
	return "", fmt.Errorf("unknown sensor kind %q: expected ydlidar, http, sim or auto", s)
}

// Options selects and configures a driver.
type Options struct {
	Kind Kind

	// Serial lidar
	Device  string
	Port    serialport.PortOptions
	LockDir string // directory for the device lock file; empty disables locking

	// Remote source
	URL string

	// Simulator
	Sim SimConfig

	// Clock paces polling and stamps sweeps; nil uses the wall clock.
	Clock timeutil.Clock

	// Hooks for tests.
	ListPorts func() ([]string, error)
	OpenPort  serialport.Opener
}

// Capability is the outcome of probing for a driver.
type Capability struct {
	Kind   Kind
	Detail string
}

func (o Options) listPorts() ([]string, error) {
	if o.ListPorts != nil {
		return o.ListPorts()
	}
	return serialport.ListPorts()
}

func (o Options) openPort() serialport.Opener {
	if o.OpenPort != nil {
		return o.OpenPort
	}
	return serialport.Open
}

// Detect probes for the requested driver without opening it. Missing
// hardware is reported as *UnavailableError.
func Detect(opts Options) (Capability, error) {
	switch opts.Kind {
	case KindSim:
		return Capability{Kind: KindSim, Detail: "simulated pool"}, nil
	case KindHTTP:
		if opts.URL == "" {
			return Capability{}, &UnavailableError{Kind: KindHTTP, Reason: "no URL configured"}
		}
		return Capability{Kind: KindHTTP, Detail: opts.URL}, nil
	case KindYDLidar:
		return detectSerial(opts)
	case KindAuto:
		capa, err := detectSerial(opts)
		if err == nil {
			return capa, nil
		}
		nav.Opsf("serial lidar not found (%v), falling back to simulator", err)
		return Capability{Kind: KindSim, Detail: "fallback: " + err.Error()}, nil
	}
	return Capability{}, fmt.Errorf("unknown sensor kind %q", opts.Kind)
}

func detectSerial(opts Options) (Capability, error) {
	if opts.Device == "" {
		return Capability{}, &UnavailableError{Kind: KindYDLidar, Reason: "no device configured"}
	}
	ports, err := opts.listPorts()
	if err != nil {
		return Capability{}, &UnavailableError{Kind: KindYDLidar, Reason: "cannot enumerate serial ports", Err: err}
	}
	for _, p := range ports {
		if p == opts.Device {
			return Capability{Kind: KindYDLidar, Detail: p}, nil
		}
	}
	// Symlinked device names (udev rules) do not show up in the port list.
	if _, err := os.Stat(opts.Device); err == nil {
		return Capability{Kind: KindYDLidar, Detail: opts.Device}, nil
	}
	return Capability{}, &UnavailableError{
		Kind:   KindYDLidar,
		Reason: fmt.Sprintf("device %s not present (found %s)", opts.Device, strings.Join(ports, ", ")),
	}
}

// Open detects and opens a driver. The returned error is
// *UnavailableError when the hardware is missing.
func Open(opts Options) (Driver, Capability, error) {
	capa, err := Detect(opts)
	if err != nil {
		return nil, Capability{}, err
	}

	switch capa.Kind {
	case KindSim:
		return NewSimDriver(opts.Sim), capa, nil
	case KindHTTP:
		return NewHTTPDriver(opts.URL, nil, opts.Clock), capa, nil
	case KindYDLidar:
		var lock *DeviceLock
		if opts.LockDir != "" {
			lock, err = LockDevice(opts.LockDir, opts.Device)
			if err != nil {
				return nil, Capability{}, &UnavailableError{Kind: KindYDLidar, Reason: "device in use", Err: err}
			}
		}
		port, err := opts.openPort()(opts.Device, opts.Port)
		if err != nil {
			lock.Release()
			return nil, Capability{}, &UnavailableError{Kind: KindYDLidar, Reason: "open failed", Err: err}
		}
		d, err := NewYDLidarDriver(port, YDLidarConfig{ReadTimeout: 20 * time.Millisecond, Clock: opts.Clock})
		if err != nil {
			port.Close()
			lock.Release()
			return nil, Capability{}, &UnavailableError{Kind: KindYDLidar, Reason: "start scan failed", Err: err}
		}
		d.lock = lock
		return d, capa, nil
	}
	return nil, Capability{}, fmt.Errorf("unsupported sensor kind %q", capa.Kind)
}
