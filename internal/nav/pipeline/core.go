package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/actuation"
	"github.com/banshee-data/ecoship/internal/nav/l1scan"
	"github.com/banshee-data/ecoship/internal/nav/l2odometry"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l4perception"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
	"github.com/banshee-data/ecoship/internal/nav/sensor"
	"github.com/banshee-data/ecoship/internal/timeutil"
)

// SweepSource is the part of a sensor driver the loop needs.
type SweepSource interface {
	Acquire(ctx context.Context) (nav.Sweep, error)
}

// Config holds the dependencies of a Core.
type Config struct {
	Params  Params
	Source  SweepSource
	Sink    actuation.Sink  // nil logs commands only
	Clock   timeutil.Clock  // nil uses the wall clock
	Publish PublishSink     // optional
	Persist PersistenceSink // optional

	// Registrar and Clusterer override the stage implementations chosen
	// from Params.
	Registrar l2odometry.Registrar
	Clusterer l4perception.Clusterer
}

// Core is the navigation state owned by the control loop. None of its
// methods are safe for concurrent use except RequestMapReset.
type Core struct {
	params  Params
	source  SweepSource
	sink    actuation.Sink
	clock   timeutil.Clock
	publish PublishSink
	persist PersistenceSink

	mapValidator    l1scan.Validator
	hazardValidator l1scan.Validator
	registrar       l2odometry.Registrar
	compositor      *l2odometry.Compositor
	grid            *l3grid.OccupancyGrid
	clusterer       l4perception.Clusterer
	hazard          *l4perception.HazardEvaluator
	machine         *l5control.StateMachine
	controller      *l5control.Controller
	watchdog        *l5control.Watchdog

	learner    *l3grid.BaselineLearner
	learnStart time.Time

	prev     nav.PointCloud
	hasPrev  bool
	seq      uint64
	resetReq atomic.Bool
}

// isNilInterface reports whether i is nil or a typed nil pointer.
func isNilInterface(i any) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// NewCore validates the parameters and assembles the stages.
func NewCore(cfg Config) (*Core, error) {
	p := cfg.Params
	if isNilInterface(cfg.Source) {
		return nil, errors.New("pipeline: no sweep source")
	}
	if err := p.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if p.TickInterval <= 0 {
		return nil, fmt.Errorf("pipeline: tick interval must be positive, got %v", p.TickInterval)
	}
	grid, err := l3grid.NewOccupancyGrid(p.Grid)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	c := &Core{
		params:          p,
		source:          cfg.Source,
		sink:            cfg.Sink,
		clock:           cfg.Clock,
		mapValidator:    l1scan.NewMapValidator(p.MinRange, p.Grid.Side),
		hazardValidator: l1scan.NewHazardValidator(p.MinRange),
		registrar:       cfg.Registrar,
		compositor:      l2odometry.NewCompositor(p.TrajectoryCap),
		grid:            grid,
		clusterer:       cfg.Clusterer,
		hazard:          l4perception.NewHazardEvaluator(p.Hazard, nil),
		machine:         l5control.NewStateMachine(p.Thresholds),
		controller:      l5control.NewController(p.Control, p.Thresholds),
	}
	if isNilInterface(c.sink) {
		c.sink = actuation.LogSink{}
	}
	if isNilInterface(c.clock) {
		c.clock = timeutil.RealClock{}
	}
	if !isNilInterface(cfg.Publish) {
		c.publish = cfg.Publish
	}
	if !isNilInterface(cfg.Persist) {
		c.persist = cfg.Persist
	}
	if isNilInterface(c.registrar) {
		if p.OdometryEnabled {
			c.registrar = l2odometry.NewICPRegistrar(p.ICP)
		} else {
			c.registrar = l2odometry.IdentityRegistrar{}
		}
	}
	if isNilInterface(c.clusterer) {
		if p.ClusteringEnabled {
			c.clusterer = l4perception.NewDBSCANClusterer(p.Clustering)
		} else {
			c.clusterer = &l4perception.NoopClusterer{}
		}
	}
	if p.BaselineDuration > 0 {
		c.learner = l3grid.NewBaselineLearner(p.BaselineBinDeg)
	}
	c.watchdog = l5control.NewWatchdog(c.clock, p.WatchdogTimeout, p.Control.SafeStop())
	return c, nil
}

// Params returns the parameters the core was built with.
func (c *Core) Params() Params { return c.params }

// Pose returns the current global pose.
func (c *Core) Pose() nav.Pose { return c.compositor.Pose() }

// State returns the current navigation state.
func (c *Core) State() l5control.State { return c.machine.State() }

// Learning reports whether the wall baseline is still being learned.
func (c *Core) Learning() bool { return c.learner != nil }

// SetBaseline installs a wall baseline and ends any learning window.
func (c *Core) SetBaseline(b *l3grid.WallBaseline) {
	c.learner = nil
	c.hazard.SetBaseline(b)
}

// RequestMapReset asks the loop to clear the occupancy grid before its next
// tick. Safe to call from any goroutine.
func (c *Core) RequestMapReset() { c.resetReq.Store(true) }

// Tick reads one sweep, bounded by the sensor timeout, and runs it
// through the pipeline. A failed read runs the tick as a dropped frame.
func (c *Core) Tick(ctx context.Context) *Frame {
	readCtx, cancel := context.WithTimeout(ctx, c.params.SensorTimeout)
	sweep, err := c.source.Acquire(readCtx)
	cancel()

	dropped := err != nil
	if dropped {
		if errors.Is(err, sensor.ErrTimeout) {
			nav.Tracef("tick %d: sensor timeout", c.seq+1)
		} else {
			nav.Diagf("tick %d: sensor read failed: %v", c.seq+1, err)
		}
		sweep = nav.Sweep{Timestamp: c.clock.Now()}
	}
	return c.Step(sweep, dropped)
}

// Step runs one sweep through every stage, issues the resulting command
// and hands the frame to the sinks. A dropped tick still decays the grid
// and appends to the trajectory. It holds the navigation state, cuts the
// throttle with the rudder left where the smoother had it, and neither
// replaces the registration reference nor kicks the watchdog.
func (c *Core) Step(sweep nav.Sweep, dropped bool) *Frame {
	start := c.clock.Now()
	c.seq++

	if c.resetReq.Swap(false) {
		c.grid.Reset()
		nav.Opsf("occupancy grid reset")
	}

	mapSamples := c.mapValidator.Validate(sweep.Samples)
	hazardSamples := c.hazardValidator.Validate(sweep.Samples)
	cloud := l1scan.BuildCloud(mapSamples)

	reg := l2odometry.Registration{Transform: nav.IdentityPose, Fallback: true}
	if c.hasPrev {
		reg = c.registrar.Register(c.prev, cloud)
	}
	pose := c.compositor.Apply(reg.Transform)
	if !dropped {
		c.prev = cloud
		c.hasPrev = true
	}

	world := cloud.Transform(pose, nav.FrameWorld)
	hits := c.grid.Integrate(world)
	clusters := c.clusterer.Cluster(world)

	learning := c.learn(hazardSamples, dropped)
	sectors := c.hazard.Evaluate(hazardSamples)

	prevState := c.machine.State()
	var cmd l5control.Command
	switch {
	case learning:
		cmd = c.params.Control.SafeStop()
	case dropped:
		cmd = l5control.Command{Throttle: 0, Steering: c.controller.Smoothed()}
	default:
		state := c.machine.Step(sectors.Center)
		cmd = c.controller.Command(state, sectors)
		if state != prevState {
			nav.Opsf("state %s -> %s (center %.2fm, left %.2fm, right %.2fm)",
				prevState, state, sectors.Center, sectors.Left, sectors.Right)
		}
	}

	if !dropped {
		c.watchdog.Kick()
	}
	tripped := c.watchdog.Expired()
	if tripped {
		cmd = c.params.Control.SafeStop()
	}
	c.actuate(cmd)

	f := &Frame{
		Seq:             c.seq,
		Timestamp:       sweep.Timestamp,
		Sweep:           sweep,
		Dropped:         dropped,
		Learning:        learning,
		Valid:           len(mapSamples),
		Registration:    reg,
		Pose:            pose,
		Trajectory:      c.compositor.Trajectory(),
		Grid:            c.grid.Snapshot(),
		CellsHit:        hits,
		Clusters:        clusters,
		Sectors:         sectors,
		PrevState:       prevState,
		State:           c.machine.State(),
		Command:         cmd,
		WatchdogTripped: tripped,
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = start
	}
	f.Elapsed = c.clock.Since(start)

	nav.Tracef("tick %d: valid=%d icp(iter=%d corr=%d rmse=%.4f) pose=(%.3f,%.3f,%.3f) clusters=%d state=%s cmd=(%.1f,%.1f)",
		f.Seq, f.Valid, reg.Iterations, reg.Correspondences, reg.RMSE,
		pose.X, pose.Y, pose.Theta, len(clusters), f.State, cmd.Throttle, cmd.Steering)

	if c.publish != nil {
		c.publish.PublishFrame(f)
	}
	if c.persist != nil {
		c.persist.RecordFrame(f)
	}
	return f
}

// learn feeds the baseline learner while its window is open and installs
// the learned baseline when the window closes. It reports whether the tick
// is still inside the window.
func (c *Core) learn(samples []nav.RangeSample, dropped bool) bool {
	if c.learner == nil {
		return false
	}
	if c.learnStart.IsZero() {
		c.learnStart = c.clock.Now()
		nav.Opsf("learning wall baseline for %v; holding position", c.params.BaselineDuration)
	}
	if !dropped {
		c.learner.Add(samples)
	}
	if c.clock.Since(c.learnStart) < c.params.BaselineDuration {
		return true
	}

	baseline := c.learner.Finish()
	c.learner = nil
	c.hazard.SetBaseline(baseline)
	nav.Opsf("wall baseline learned from %d sweeps (%d bins)", baseline.Sweeps(), baseline.LearnedBins())
	return false
}

// CheckWatchdog forces a safe stop when no tick has completed within the
// watchdog timeout. It reports whether the watchdog is expired.
func (c *Core) CheckWatchdog() bool {
	cmd, expired, newlyTripped := c.watchdog.Check()
	if !expired {
		return false
	}
	if newlyTripped {
		nav.Opsf("watchdog: no completed tick since %s, forcing safe stop",
			c.watchdog.LastKick().Format(time.RFC3339Nano))
		c.controller.Reset()
	}
	c.actuate(cmd)
	return true
}

// SafeStop stops the motors and centres the rudder.
func (c *Core) SafeStop() {
	c.actuate(c.params.Control.SafeStop())
}

func (c *Core) actuate(cmd l5control.Command) {
	if err := actuation.Apply(c.sink, cmd); err != nil {
		nav.Opsf("actuation failed: %v", err)
	}
}
