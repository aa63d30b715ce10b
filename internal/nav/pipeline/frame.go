package pipeline

import (
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l2odometry"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l4perception"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
)

// Frame is the outcome of one tick. Every slice in a Frame is freshly
// allocated for that tick; sinks may retain a Frame but must not modify it.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Elapsed   time.Duration // processing time, excluding the sensor wait

	Sweep    nav.Sweep // raw sweep; empty when Dropped
	Dropped  bool      // the sensor read failed or timed out
	Learning bool      // the wall baseline was still being learned
	Valid    int       // samples that passed map validation

	Registration l2odometry.Registration
	Pose         nav.Pose
	Trajectory   []nav.Point

	Grid     l3grid.GridSnapshot
	CellsHit int
	Clusters []l4perception.ObstacleCluster
	Sectors  l4perception.HazardSectors

	PrevState l5control.State
	State     l5control.State
	Command   l5control.Command

	WatchdogTripped bool
}

// Transitioned reports whether the state machine changed state this tick.
func (f *Frame) Transitioned() bool { return f.PrevState != f.State }

// PublishSink receives every frame for live consumers.
type PublishSink interface {
	PublishFrame(f *Frame)
}

// PersistenceSink receives every frame for the run log. Implementations
// must not block the loop.
type PersistenceSink interface {
	RecordFrame(f *Frame)
}
