package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/banshee-data/ecoship/internal/httputil"
	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

// LatestScan is the JSON body served at /lidar/latest by a lidar node:
// angles in degrees, ranges in metres, ts in Unix seconds.
type LatestScan struct {
	Timestamp float64   `json:"ts"`
	Angles    []float64 `json:"angles"`
	Ranges    []float64 `json:"ranges"`
}

// HTTPDriver polls a remote lidar node for its latest scan.
type HTTPDriver struct {
	url    string
	client httputil.HTTPClient
	clock  timeutil.Clock
	poll   time.Duration
	lastTS float64
}

// NewHTTPDriver creates a driver for url. A nil client uses a default
// client and a nil clock uses the wall clock.
func NewHTTPDriver(url string, client httputil.HTTPClient, clock timeutil.Clock) *HTTPDriver {
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: 2 * time.Second})
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &HTTPDriver{url: url, client: client, clock: clock, poll: 20 * time.Millisecond}
}

// Acquire fetches scans until one newer than the last returned arrives or
// ctx is done.
func (d *HTTPDriver) Acquire(ctx context.Context) (nav.Sweep, error) {
	for {
		scan, err := d.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nav.Sweep{}, timeoutErr(ctx)
			}
			return nav.Sweep{}, err
		}
		if scan.Timestamp != d.lastTS || scan.Timestamp == 0 {
			d.lastTS = scan.Timestamp
			return scan.toSweep(d.clock.Now()), nil
		}

		timer := d.clock.NewTimer(d.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nav.Sweep{}, timeoutErr(ctx)
		case <-timer.C():
		}
	}
}

func (d *HTTPDriver) fetch(ctx context.Context) (LatestScan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return LatestScan{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return LatestScan{}, fmt.Errorf("fetch %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return LatestScan{}, fmt.Errorf("fetch %s: status %d: %s", d.url, resp.StatusCode, body)
	}

	var scan LatestScan
	if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
		return LatestScan{}, fmt.Errorf("decode scan: %w", err)
	}
	if len(scan.Angles) != len(scan.Ranges) {
		return LatestScan{}, fmt.Errorf("scan has %d angles but %d ranges", len(scan.Angles), len(scan.Ranges))
	}
	return scan, nil
}

// toSweep converts the scan, stamping it with now when the node sent no
// timestamp.
func (s LatestScan) toSweep(now time.Time) nav.Sweep {
	samples := make([]nav.RangeSample, len(s.Angles))
	for i := range s.Angles {
		samples[i] = nav.RangeSample{Angle: nav.WrapAngle(nav.DegToRad(s.Angles[i])), Range: s.Ranges[i]}
	}
	ts := now
	if s.Timestamp > 0 {
		sec, frac := math.Modf(s.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return nav.Sweep{Timestamp: ts, Samples: samples, Source: string(KindHTTP)}
}

// Close is a no-op.
func (d *HTTPDriver) Close() error { return nil }
