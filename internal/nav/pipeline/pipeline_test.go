package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/ecoship/internal/config"
	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/actuation"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
	"github.com/banshee-data/ecoship/internal/nav/sensor"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type sourceFunc func(ctx context.Context) (nav.Sweep, error)

func (f sourceFunc) Acquire(ctx context.Context) (nav.Sweep, error) { return f(ctx) }

func timeoutSource() sourceFunc {
	return func(context.Context) (nav.Sweep, error) {
		return nav.Sweep{}, sensor.ErrTimeout
	}
}

type collector struct {
	mu      sync.Mutex
	frames  []*Frame
	onFrame func(*Frame)
}

func (c *collector) PublishFrame(f *Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	if c.onFrame != nil {
		c.onFrame(f)
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// ring returns n samples evenly spaced over a full turn at range r.
func ring(n int, r float64) nav.Sweep {
	samples := make([]nav.RangeSample, n)
	for i := range samples {
		samples[i] = nav.RangeSample{Angle: nav.WrapAngle(-math.Pi + 2*math.Pi*float64(i)/float64(n)), Range: r}
	}
	return nav.Sweep{Timestamp: t0, Samples: samples}
}

func noLearning() Params {
	p := DefaultParams()
	p.BaselineDuration = 0
	return p
}

func newTestCore(t *testing.T, cfg Config) *Core {
	t.Helper()
	if cfg.Source == nil {
		cfg.Source = timeoutSource()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewMockClock(t0)
	}
	if cfg.Params.TickInterval == 0 {
		cfg.Params = noLearning()
	}
	c, err := NewCore(cfg)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return c
}

// ============================================================================
// End-to-end scenarios
// ============================================================================

func TestScenarioBaselineWallsStayInCruise(t *testing.T) {
	sink := actuation.NewRecordingSink(l5control.Command{Steering: 90})
	c := newTestCore(t, Config{Sink: sink})
	c.SetBaseline(l3grid.UniformBaseline(1, 6.0))

	f := c.Step(ring(720, 6.0), false)

	for name, v := range map[string]float64{"left": f.Sectors.Left, "center": f.Sectors.Center, "right": f.Sectors.Right} {
		if !math.IsInf(v, 1) {
			t.Errorf("expected %s sector +Inf, got %f", name, v)
		}
	}
	if f.State != l5control.Cruise {
		t.Errorf("expected CRUISE, got %s", f.State)
	}
	if got := sink.Current(); got.Throttle != 40 || math.Abs(got.Steering-90) > 1e-9 {
		t.Errorf("expected cruise command {40 90}, got %+v", got)
	}
	if f.Valid != 0 {
		t.Errorf("6 m returns are outside a 4 m map, expected 0 valid, got %d", f.Valid)
	}
}

func TestScenarioObstacleAheadTriggersAvoid(t *testing.T) {
	sink := actuation.NewRecordingSink(l5control.Command{Steering: 90})
	c := newTestCore(t, Config{Sink: sink})

	var samples []nav.RangeSample
	for deg := -5.0; deg <= 5.0; deg += 0.5 {
		samples = append(samples, nav.RangeSample{Angle: nav.DegToRad(deg), Range: 0.3})
	}
	samples = append(samples, nav.RangeSample{Angle: nav.DegToRad(-40), Range: 1.0})

	f := c.Step(nav.Sweep{Timestamp: t0, Samples: samples}, false)

	if math.Abs(f.Sectors.Center-0.3) > 1e-12 {
		t.Errorf("expected center 0.3, got %f", f.Sectors.Center)
	}
	if f.State != l5control.Avoid || !f.Transitioned() {
		t.Fatalf("expected transition to AVOID, got %s -> %s", f.PrevState, f.State)
	}
	// Port side is nearer, so the rudder swings to starboard; the EMA moves
	// 30% of the way from centre towards 115°.
	if f.Command.Throttle != 30 {
		t.Errorf("expected avoid throttle 30, got %f", f.Command.Throttle)
	}
	if math.Abs(f.Command.Steering-97.5) > 1e-9 {
		t.Errorf("expected steering 97.5, got %f", f.Command.Steering)
	}
	if sink.Current() != f.Command {
		t.Errorf("sink got %+v, frame says %+v", sink.Current(), f.Command)
	}
}

func TestScenarioStationaryOdometry(t *testing.T) {
	sim := sensor.NewSimDriver(sensor.SimConfig{})
	c := newTestCore(t, Config{Source: sim})

	f1 := c.Tick(context.Background())
	f2 := c.Tick(context.Background())

	if f1.Dropped || f2.Dropped {
		t.Fatal("simulated reads should not drop")
	}
	if !f2.Registration.Transform.IsIdentity() {
		t.Errorf("expected exact identity for identical clouds, got %+v", f2.Registration.Transform)
	}
	if f2.Pose != f1.Pose {
		t.Errorf("pose moved: %+v -> %+v", f1.Pose, f2.Pose)
	}
	if len(f2.Trajectory) != len(f1.Trajectory)+1 {
		t.Fatalf("expected trajectory to grow by one, got %d -> %d", len(f1.Trajectory), len(f2.Trajectory))
	}
	n := len(f2.Trajectory)
	if f2.Trajectory[n-1] != f2.Trajectory[n-2] {
		t.Errorf("expected repeated trajectory entry, got %+v then %+v", f2.Trajectory[n-2], f2.Trajectory[n-1])
	}
}

// ============================================================================
// Dropped ticks and the watchdog
// ============================================================================

func TestDroppedTickDecaysGrid(t *testing.T) {
	c := newTestCore(t, Config{})
	sim := sensor.NewSimDriver(sensor.SimConfig{})
	sweep, _ := sim.Acquire(context.Background())

	f1 := c.Step(sweep, false)
	ix, iy, best := 0, 0, 0.0
	for y := 0; y < f1.Grid.Size; y++ {
		for x := 0; x < f1.Grid.Size; x++ {
			if w := f1.Grid.At(x, y); w > best {
				ix, iy, best = x, y, w
			}
		}
	}
	if best == 0 {
		t.Fatal("expected occupied cells after a good sweep")
	}

	f2 := c.Tick(context.Background())
	if !f2.Dropped {
		t.Fatal("expected dropped tick")
	}
	if got := f2.Grid.At(ix, iy); math.Abs(got-best*0.95) > 1e-12 {
		t.Errorf("expected decayed weight %f, got %f", best*0.95, got)
	}
	if len(f2.Trajectory) != len(f1.Trajectory)+1 || f2.Pose != f1.Pose {
		t.Error("dropped tick should append an unchanged pose")
	}
	for _, v := range []float64{f2.Sectors.Left, f2.Sectors.Center, f2.Sectors.Right} {
		if !math.IsInf(v, 1) {
			t.Errorf("dropped tick should report all-clear, got %+v", f2.Sectors)
		}
	}
}

func TestDroppedTickKeepsRegistrationReference(t *testing.T) {
	c := newTestCore(t, Config{})
	sweep, _ := sensor.NewSimDriver(sensor.SimConfig{}).Acquire(context.Background())

	c.Step(sweep, false)
	c.Step(nav.Sweep{}, true)
	f := c.Step(sweep, false)
	if f.Registration.Fallback {
		t.Error("registration should match against the last good cloud, not the dropped one")
	}
	if !f.Registration.Transform.IsIdentity() {
		t.Errorf("expected identity, got %+v", f.Registration.Transform)
	}
}

func TestDroppedTickHoldsAvoidAndCutsThrottle(t *testing.T) {
	sink := actuation.NewRecordingSink(l5control.Command{Steering: 90})
	c := newTestCore(t, Config{Sink: sink})

	var samples []nav.RangeSample
	for deg := -5.0; deg <= 5.0; deg += 0.5 {
		samples = append(samples, nav.RangeSample{Angle: nav.DegToRad(deg), Range: 0.3})
	}
	samples = append(samples, nav.RangeSample{Angle: nav.DegToRad(-40), Range: 1.0})

	f := c.Step(nav.Sweep{Timestamp: t0, Samples: samples}, false)
	if f.State != l5control.Avoid {
		t.Fatalf("expected AVOID, got %s", f.State)
	}
	steer := f.Command.Steering

	f = c.Step(nav.Sweep{Timestamp: t0}, true)
	if f.State != l5control.Avoid || f.Transitioned() {
		t.Errorf("dropped tick should hold AVOID, got %s -> %s", f.PrevState, f.State)
	}
	if f.Command.Throttle != 0 {
		t.Errorf("expected throttle 0 on a dropped tick, got %f", f.Command.Throttle)
	}
	if f.Command.Steering != steer {
		t.Errorf("expected rudder held at %f, got %f", steer, f.Command.Steering)
	}
	if sink.Current() != f.Command {
		t.Errorf("sink got %+v, frame says %+v", sink.Current(), f.Command)
	}

	f = c.Step(nav.Sweep{Timestamp: t0, Samples: samples}, false)
	if f.State != l5control.Avoid || f.Command.Throttle != 30 {
		t.Errorf("expected AVOID at throttle 30 once returns resume, got %s %+v", f.State, f.Command)
	}
}

func TestSustainedDropoutTripsWatchdog(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := actuation.NewRecordingSink(l5control.Command{Steering: 90})
	c := newTestCore(t, Config{Clock: clock, Sink: sink})

	f := c.Tick(context.Background())
	if f.WatchdogTripped {
		t.Fatal("watchdog should not trip on the first dropped tick")
	}
	if want := (l5control.Command{Throttle: 0, Steering: 90}); f.Command != want {
		t.Errorf("expected throttle cut with rudder held, got %+v", f.Command)
	}

	clock.Advance(2100 * time.Millisecond)
	f = c.Tick(context.Background())
	if !f.WatchdogTripped {
		t.Fatal("expected watchdog to trip after 2.1s without a good tick")
	}
	if want := (l5control.Command{Throttle: 0, Steering: 90}); f.Command != want || sink.Current() != want {
		t.Errorf("expected safe stop %+v, frame %+v sink %+v", want, f.Command, sink.Current())
	}

	sweep, _ := sensor.NewSimDriver(sensor.SimConfig{}).Acquire(context.Background())
	f = c.Step(sweep, false)
	if f.WatchdogTripped {
		t.Error("a good tick should re-arm the watchdog")
	}
}

func TestCheckWatchdogForcesSafeStop(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := actuation.NewRecordingSink(l5control.Command{Throttle: 40, Steering: 110})
	c := newTestCore(t, Config{Clock: clock, Sink: sink})

	if c.CheckWatchdog() {
		t.Fatal("watchdog should not be expired at start")
	}
	clock.Advance(3 * time.Second)
	if !c.CheckWatchdog() {
		t.Fatal("expected expired watchdog")
	}
	if want := (l5control.Command{Throttle: 0, Steering: 90}); sink.Current() != want {
		t.Errorf("expected %+v, got %+v", want, sink.Current())
	}
}

// ============================================================================
// Baseline learning and map reset
// ============================================================================

func TestBaselineLearningWindow(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	p := DefaultParams()
	p.BaselineDuration = 200 * time.Millisecond
	c := newTestCore(t, Config{Clock: clock, Params: p})

	pool := ring(720, 1.2)
	f := c.Step(pool, false)
	if !f.Learning || !c.Learning() {
		t.Fatal("expected learning on the first tick")
	}
	if f.Command != p.Control.SafeStop() {
		t.Errorf("expected vessel held during learning, got %+v", f.Command)
	}
	if f.State != l5control.Cruise {
		t.Errorf("state machine should not run while learning, got %s", f.State)
	}

	clock.Advance(250 * time.Millisecond)
	f = c.Step(pool, false)
	if f.Learning || c.Learning() {
		t.Fatal("expected learning to finish")
	}
	// The learned walls are static, so nothing is hazardous.
	if !math.IsInf(f.Sectors.Center, 1) {
		t.Errorf("expected learned walls to be filtered, center = %f", f.Sectors.Center)
	}

	// A new return well inside the wall still counts.
	obstacle := ring(720, 1.2)
	obstacle.Samples[360].Range = 0.4
	f = c.Step(obstacle, false)
	if math.Abs(f.Sectors.Center-0.4) > 1e-12 {
		t.Errorf("expected obstacle at 0.4, got %f", f.Sectors.Center)
	}
}

func TestMapReset(t *testing.T) {
	c := newTestCore(t, Config{})
	sweep, _ := sensor.NewSimDriver(sensor.SimConfig{}).Acquire(context.Background())
	if f := c.Step(sweep, false); f.Grid.Occupied(0.1) == 0 {
		t.Fatal("expected occupied cells")
	}
	c.RequestMapReset()
	if f := c.Step(nav.Sweep{}, true); f.Grid.Occupied(1e-9) != 0 {
		t.Errorf("expected empty grid after reset, got %d occupied", f.Grid.Occupied(1e-9))
	}
}

// ============================================================================
// Scheduler
// ============================================================================

func TestRunPacesTicksAndStopsSafely(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	clock.SetAutoAdvance(true)
	sink := actuation.NewRecordingSink(l5control.Command{Steering: 90})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	col := &collector{}
	col.onFrame = func(f *Frame) {
		if f.Seq == 5 {
			cancel()
		}
	}

	c := newTestCore(t, Config{
		Clock:   clock,
		Sink:    sink,
		Source:  sensor.NewSimDriver(sensor.SimConfig{Clock: clock}),
		Publish: col,
	})
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if col.count() != 5 {
		t.Errorf("expected 5 frames, got %d", col.count())
	}
	for i, w := range clock.Waits() {
		if w != 100*time.Millisecond {
			t.Errorf("wait %d: expected 100ms, got %v", i, w)
		}
	}
	if want := (l5control.Command{Throttle: 0, Steering: 90}); sink.Current() != want {
		t.Errorf("expected safe stop on exit, got %+v", sink.Current())
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	for i := 1; i < len(col.frames); i++ {
		if gap := col.frames[i].Timestamp.Sub(col.frames[i-1].Timestamp); gap != 100*time.Millisecond {
			t.Errorf("frame %d: expected 100ms spacing, got %v", i, gap)
		}
	}
}

func TestRunOverrunSkipsSleep(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	slow := sourceFunc(func(context.Context) (nav.Sweep, error) {
		clock.Advance(150 * time.Millisecond)
		return ring(360, 1.0), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	col := &collector{onFrame: func(f *Frame) {
		if f.Seq == 3 {
			cancel()
		}
	}}
	c := newTestCore(t, Config{Clock: clock, Source: slow, Publish: col})
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(clock.Waits()); n != 0 {
		t.Errorf("overrunning ticks should not sleep, got %d waits", n)
	}
}

func TestRunReturnsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	col := &collector{}
	c := newTestCore(t, Config{Publish: col})
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if col.count() != 0 {
		t.Errorf("expected no ticks, got %d", col.count())
	}
}

// ============================================================================
// Construction
// ============================================================================

func TestNewCoreErrors(t *testing.T) {
	bad := DefaultParams()
	bad.Thresholds.AvoidIn = 0.8

	badGrid := DefaultParams()
	badGrid.Grid.Side = 50

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no source", Config{Params: DefaultParams()}},
		{"typed nil source", Config{Params: DefaultParams(), Source: (*sensor.SimDriver)(nil)}},
		{"thresholds", Config{Params: bad, Source: timeoutSource()}},
		{"grid", Config{Params: badGrid, Source: timeoutSource()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCore(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParamsFromDefaultConfig(t *testing.T) {
	got := ParamsFromConfig(config.EmptyNavConfig())
	if diff := cmp.Diff(DefaultParams(), got); diff != "" {
		t.Errorf("config defaults differ from built-in params (-builtin +config):\n%s", diff)
	}
}

func TestStagesDisabledByConfig(t *testing.T) {
	p := noLearning()
	p.OdometryEnabled = false
	p.ClusteringEnabled = false
	c := newTestCore(t, Config{Params: p})

	sim := sensor.NewSimDriver(sensor.SimConfig{Velocity: nav.Pose{X: 0.02}})
	for i := 0; i < 3; i++ {
		sweep, err := sim.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		f := c.Step(sweep, false)
		if !f.Pose.IsIdentity() {
			t.Errorf("tick %d: identity registrar should never move the pose, got %+v", i, f.Pose)
		}
		if len(f.Clusters) != 0 {
			t.Errorf("tick %d: expected no clusters, got %d", i, len(f.Clusters))
		}
	}
}

func TestSinkErrorsDoNotStopTheLoop(t *testing.T) {
	c := newTestCore(t, Config{Sink: failingSink{}})
	if f := c.Step(ring(360, 1.5), false); f == nil {
		t.Fatal("expected a frame")
	}
}

type failingSink struct{}

func (failingSink) SetThrottle(float64) error { return errors.New("no controller") }
func (failingSink) SetSteering(float64) error { return errors.New("no controller") }
