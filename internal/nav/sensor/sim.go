package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

// Obstacle is a circular obstacle in the simulated pool.
type Obstacle struct {
	X, Y, Radius float64
}

// SimConfig describes the simulated environment.
type SimConfig struct {
	PoolLength float64 // along X, metres
	PoolWidth  float64 // along Y, metres
	Samples    int     // returns per rotation
	Noise      float64 // standard deviation of range noise, metres
	MaxRange   float64
	Period     time.Duration // rotation period
	Pose       nav.Pose      // vessel pose in pool coordinates (pool centre at origin)
	Velocity   nav.Pose      // per-rotation motion applied after each sweep
	Obstacles  []Obstacle
	Seed       int64
	Clock      timeutil.Clock
}

// DefaultSimConfig returns a small rectangular pool with the vessel at its
// centre.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		PoolLength: 2.6,
		PoolWidth:  1.75,
		Samples:    720,
		Noise:      0.005,
		MaxRange:   8,
		Period:     100 * time.Millisecond,
		Seed:       1,
	}
}

// SimDriver raycasts a rectangular pool with circular obstacles.
type SimDriver struct {
	mu    sync.Mutex
	cfg   SimConfig
	rng   *rand.Rand
	clock timeutil.Clock
}

// NewSimDriver creates a simulator. Zero geometry fields take defaults;
// a zero Noise means exact ranges.
func NewSimDriver(cfg SimConfig) *SimDriver {
	def := DefaultSimConfig()
	if cfg.PoolLength <= 0 {
		cfg.PoolLength = def.PoolLength
	}
	if cfg.PoolWidth <= 0 {
		cfg.PoolWidth = def.PoolWidth
	}
	if cfg.Samples <= 0 {
		cfg.Samples = def.Samples
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = def.MaxRange
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SimDriver{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed)), clock: cfg.Clock}
}

// SetPose moves the simulated vessel.
func (d *SimDriver) SetPose(p nav.Pose) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Pose = p
}

// Pose returns the simulated vessel pose.
func (d *SimDriver) Pose() nav.Pose {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Pose
}

// SetObstacles replaces the obstacle set.
func (d *SimDriver) SetObstacles(obs []Obstacle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Obstacles = append([]Obstacle(nil), obs...)
}

// Acquire synthesises one rotation. It never blocks beyond ctx.
func (d *SimDriver) Acquire(ctx context.Context) (nav.Sweep, error) {
	if err := ctx.Err(); err != nil {
		return nav.Sweep{}, timeoutErr(ctx)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	samples := make([]nav.RangeSample, d.cfg.Samples)
	step := 2 * math.Pi / float64(d.cfg.Samples)
	for i := range samples {
		a := -math.Pi + step*float64(i)
		r := d.cast(a)
		if r < d.cfg.MaxRange && d.cfg.Noise > 0 {
			r += d.rng.NormFloat64() * d.cfg.Noise
		}
		if r >= d.cfg.MaxRange {
			r = 0 // no return
		}
		samples[i] = nav.RangeSample{Angle: nav.WrapAngle(a), Range: r}
	}
	d.cfg.Pose = d.cfg.Pose.Compose(d.cfg.Velocity)
	return nav.Sweep{Timestamp: d.clock.Now(), Samples: samples, Source: string(KindSim)}, nil
}

// cast returns the range along sensor-frame bearing a.
func (d *SimDriver) cast(a float64) float64 {
	p := d.cfg.Pose
	heading := p.Theta + a
	dx, dy := math.Cos(heading), math.Sin(heading)
	best := d.cfg.MaxRange

	hx, hy := d.cfg.PoolLength/2, d.cfg.PoolWidth/2
	if dx > 1e-12 {
		best = math.Min(best, (hx-p.X)/dx)
	} else if dx < -1e-12 {
		best = math.Min(best, (-hx-p.X)/dx)
	}
	if dy > 1e-12 {
		best = math.Min(best, (hy-p.Y)/dy)
	} else if dy < -1e-12 {
		best = math.Min(best, (-hy-p.Y)/dy)
	}

	for _, o := range d.cfg.Obstacles {
		// Solve |p + t·d - o|² = r² for the nearest t > 0.
		fx, fy := p.X-o.X, p.Y-o.Y
		b := fx*dx + fy*dy
		c := fx*fx + fy*fy - o.Radius*o.Radius
		disc := b*b - c
		if disc < 0 {
			continue
		}
		t := -b - math.Sqrt(disc)
		if t > 0 && t < best {
			best = t
		}
	}
	return math.Max(best, 0)
}

// Close is a no-op.
func (d *SimDriver) Close() error { return nil }
