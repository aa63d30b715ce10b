// Package telemetry publishes the navigation loop's frames to readers:
// JSON over HTTP, go-echarts pages, a gRPC service and tsweb debug pages.
// Readers never see the loop's own state; each read converts the latest
// frame into freshly allocated view types.
package telemetry

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

// Sectors holds the hazard minima. A nil value means the sector is clear.
type Sectors struct {
	Left   *float64 `json:"left"`
	Center *float64 `json:"center"`
	Right  *float64 `json:"right"`
}

// Odometry summarises the tick's registration.
type Odometry struct {
	Iterations      int     `json:"iterations"`
	Correspondences int     `json:"correspondences"`
	RMSE            float64 `json:"rmse"`
	Converged       bool    `json:"converged"`
	Fallback        bool    `json:"fallback"`
}

// Cluster is an obstacle cluster in world coordinates.
type Cluster struct {
	Centroid [2]float64 `json:"centroid"`
	Box      [4]float64 `json:"box"` // min x, min y, max x, max y
	Size     int        `json:"size"`
}

// Snapshot is the JSON view of one tick.
type Snapshot struct {
	Seq       uint64  `json:"seq"`
	Timestamp float64 `json:"ts"`
	Source    string  `json:"source"`

	// Raw sweep: degrees and metres, returns with a positive finite range
	// only.
	Angles []float64 `json:"angles"`
	Ranges []float64 `json:"ranges"`

	Dropped  bool `json:"dropped"`
	Learning bool `json:"learning"`
	Valid    int  `json:"valid"`

	Pose       nav.Pose     `json:"pose"`
	Odometry   Odometry     `json:"odometry"`
	Trajectory [][2]float64 `json:"trajectory"`
	Clusters   []Cluster    `json:"clusters"`
	Sectors    Sectors      `json:"sectors"`

	State           l5control.State   `json:"state"`
	Command         l5control.Command `json:"command"`
	WatchdogTripped bool              `json:"watchdog_tripped"`
	ElapsedMS       float64           `json:"elapsed_ms"`
}

// MapView is the JSON view of the occupancy map and its overlays.
type MapView struct {
	Seq        uint64              `json:"seq"`
	Timestamp  float64             `json:"ts"`
	Grid       l3grid.GridSnapshot `json:"grid"`
	Pose       nav.Pose            `json:"pose"`
	Trajectory [][2]float64        `json:"trajectory"`
	Clusters   []Cluster           `json:"clusters"`
}

func unixSeconds(f *pipeline.Frame) float64 {
	return float64(f.Timestamp.UnixNano()) / 1e9
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func trajectoryOf(pts []nav.Point) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func clustersOf(f *pipeline.Frame) []Cluster {
	out := make([]Cluster, len(f.Clusters))
	for i, c := range f.Clusters {
		out[i] = Cluster{
			Centroid: [2]float64{c.Centroid.X, c.Centroid.Y},
			Box:      [4]float64{c.Box.MinX, c.Box.MinY, c.Box.MaxX, c.Box.MaxY},
			Size:     c.Size,
		}
	}
	return out
}

// SnapshotOf converts a frame into its JSON view.
func SnapshotOf(f *pipeline.Frame) Snapshot {
	s := Snapshot{
		Seq:       f.Seq,
		Timestamp: unixSeconds(f),
		Source:    f.Sweep.Source,
		Angles:    make([]float64, 0, f.Sweep.Len()),
		Ranges:    make([]float64, 0, f.Sweep.Len()),
		Dropped:   f.Dropped,
		Learning:  f.Learning,
		Valid:     f.Valid,
		Pose:      f.Pose,
		Odometry: Odometry{
			Iterations:      f.Registration.Iterations,
			Correspondences: f.Registration.Correspondences,
			RMSE:            f.Registration.RMSE,
			Converged:       f.Registration.Converged,
			Fallback:        f.Registration.Fallback,
		},
		Trajectory: trajectoryOf(f.Trajectory),
		Clusters:   clustersOf(f),
		Sectors: Sectors{
			Left:   finiteOrNil(f.Sectors.Left),
			Center: finiteOrNil(f.Sectors.Center),
			Right:  finiteOrNil(f.Sectors.Right),
		},
		State:           f.State,
		Command:         f.Command,
		WatchdogTripped: f.WatchdogTripped,
		ElapsedMS:       float64(f.Elapsed.Microseconds()) / 1000,
	}
	for _, smp := range f.Sweep.Samples {
		if smp.Range > 0 && !math.IsInf(smp.Range, 0) && !math.IsNaN(smp.Angle) {
			s.Angles = append(s.Angles, nav.RadToDeg(smp.Angle))
			s.Ranges = append(s.Ranges, smp.Range)
		}
	}
	return s
}

// MapOf converts a frame into its map view.
func MapOf(f *pipeline.Frame) MapView {
	grid := f.Grid
	grid.Cells = append([]float64(nil), f.Grid.Cells...)
	return MapView{
		Seq:        f.Seq,
		Timestamp:  unixSeconds(f),
		Grid:       grid,
		Pose:       f.Pose,
		Trajectory: trajectoryOf(f.Trajectory),
		Clusters:   clustersOf(f),
	}
}
