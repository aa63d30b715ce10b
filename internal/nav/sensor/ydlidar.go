package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/serialport"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

// YDLidarConfig configures the serial lidar driver.
type YDLidarConfig struct {
	ReadTimeout time.Duration // per-Read bound on the serial port
	Clock       timeutil.Clock
}

// YDLidarDriver reads a YDLIDAR X4-class rangefinder. A background reader
// assembles rotations continuously; Acquire hands out each completed
// rotation once.
type YDLidarDriver struct {
	port  serialport.Port
	clock timeutil.Clock
	lock  *DeviceLock

	mu      sync.Mutex
	latest  nav.Sweep
	seq     uint64
	served  uint64
	notify  chan struct{}
	readErr error

	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// NewYDLidarDriver spins up the motor, starts scanning and launches the
// reader goroutine.
func NewYDLidarDriver(port serialport.Port, cfg YDLidarConfig) (*YDLidarDriver, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 20 * time.Millisecond
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.SetDTR(true); err != nil {
		return nil, fmt.Errorf("enable motor: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("flush input: %w", err)
	}
	if _, err := port.Write(cmdStartScan); err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	d := &YDLidarDriver{
		port:   port,
		clock:  cfg.Clock,
		notify: make(chan struct{}),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go d.readLoop()
	nav.Opsf("ydlidar scanning")
	return d, nil
}

func (d *YDLidarDriver) readLoop() {
	defer close(d.done)
	var asm scanAssembler
	buf := make([]byte, 1024)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil {
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
			nav.Opsf("ydlidar read failed: %v", err)
			return
		}
		if n == 0 {
			continue // read timeout
		}
		for _, rotation := range asm.feed(buf[:n]) {
			d.publish(rotation)
		}
	}
}

func (d *YDLidarDriver) publish(samples []nav.RangeSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = nav.Sweep{Timestamp: d.clock.Now(), Samples: samples, Source: string(KindYDLidar)}
	d.seq++
	close(d.notify)
	d.notify = make(chan struct{})
	nav.Tracef("ydlidar rotation %d: %d samples", d.seq, len(samples))
}

// Acquire returns the next rotation not yet handed out, waiting until one
// completes or ctx is done.
func (d *YDLidarDriver) Acquire(ctx context.Context) (nav.Sweep, error) {
	for {
		select {
		case <-d.stop:
			return nav.Sweep{}, ErrClosed
		default:
		}

		d.mu.Lock()
		if d.seq > d.served {
			d.served = d.seq
			sweep := d.latest
			d.mu.Unlock()
			return sweep, nil
		}
		readErr := d.readErr
		notify := d.notify
		d.mu.Unlock()

		if readErr != nil {
			return nav.Sweep{}, fmt.Errorf("ydlidar: %w", readErr)
		}

		select {
		case <-ctx.Done():
			return nav.Sweep{}, timeoutErr(ctx)
		case <-d.stop:
			return nav.Sweep{}, ErrClosed
		case <-d.done:
			// Reader exited; loop once more to report its error.
			d.mu.Lock()
			if d.readErr == nil {
				d.readErr = errors.New("reader stopped")
			}
			d.mu.Unlock()
		case <-notify:
		}
	}
}

// Close stops scanning, stops the motor and releases the port.
func (d *YDLidarDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stop)
		<-d.done
		_, werr := d.port.Write(cmdStopScan)
		derr := d.port.SetDTR(false)
		cerr := d.port.Close()
		lerr := d.lock.Release()
		err = errors.Join(werr, derr, cerr, lerr)
		nav.Opsf("ydlidar stopped")
	})
	return err
}
