package telemetry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l2odometry"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l4perception"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

func testFrame(seq uint64) *pipeline.Frame {
	return &pipeline.Frame{
		Seq:       seq,
		Timestamp: time.Unix(1700000000, 500000000),
		Elapsed:   1500 * time.Microsecond,
		Sweep: nav.Sweep{
			Source: "sim",
			Samples: []nav.RangeSample{
				{Angle: 0, Range: 1.5},
				{Angle: math.Pi / 2, Range: 0},
				{Angle: -math.Pi / 2, Range: 2.0},
				{Angle: math.Pi / 4, Range: math.Inf(1)},
			},
		},
		Valid:        2,
		Registration: l2odometry.Registration{Iterations: 3, Correspondences: 120, RMSE: 0.01, Converged: true},
		Pose:         nav.Pose{X: 0.1, Y: -0.2, Theta: 0.05},
		Trajectory:   []nav.Point{{X: 0, Y: 0}, {X: 0.1, Y: -0.2}},
		Grid:         l3grid.GridSnapshot{Side: 1, Resolution: 0.5, Size: 2, Cells: []float64{0, 0.5, 1, 0}},
		Clusters: []l4perception.ObstacleCluster{{
			Box:      l4perception.BoundingBox{MinX: 0.9, MinY: 0.8, MaxX: 1.1, MaxY: 1.2},
			Centroid: nav.Point{X: 1, Y: 1},
			Size:     12,
		}},
		Sectors:   l4perception.HazardSectors{Left: math.Inf(1), Center: 0.4, Right: math.Inf(1)},
		PrevState: l5control.Slow,
		State:     l5control.Avoid,
		Command:   l5control.Command{Throttle: 30, Steering: 97.5},
	}
}

// =============================================================================
// Snapshot
// =============================================================================

func TestSnapshotOf(t *testing.T) {
	s := SnapshotOf(testFrame(7))

	assert.Equal(t, uint64(7), s.Seq)
	assert.InDelta(t, 1700000000.5, s.Timestamp, 1e-6)
	assert.Equal(t, "sim", s.Source)
	require.Len(t, s.Angles, 2)
	require.Len(t, s.Ranges, 2)
	assert.InDelta(t, 0, s.Angles[0], 1e-9)
	assert.InDelta(t, -90, s.Angles[1], 1e-9)
	assert.Equal(t, []float64{1.5, 2.0}, s.Ranges)

	assert.Nil(t, s.Sectors.Left)
	assert.Nil(t, s.Sectors.Right)
	require.NotNil(t, s.Sectors.Center)
	assert.Equal(t, 0.4, *s.Sectors.Center)

	assert.Equal(t, [][2]float64{{0, 0}, {0.1, -0.2}}, s.Trajectory)
	require.Len(t, s.Clusters, 1)
	assert.Equal(t, [2]float64{1, 1}, s.Clusters[0].Centroid)
	assert.Equal(t, [4]float64{0.9, 0.8, 1.1, 1.2}, s.Clusters[0].Box)
	assert.Equal(t, 3, s.Odometry.Iterations)
	assert.InDelta(t, 1.5, s.ElapsedMS, 1e-9)
}

func TestSnapshotEncodesWithClearSectors(t *testing.T) {
	f := testFrame(1)
	f.Sectors = l4perception.ClearSectors()

	raw, err := json.Marshal(SnapshotOf(f))
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, `"sectors":{"left":null,"center":null,"right":null}`)
	assert.Contains(t, body, `"state":"AVOID"`)
}

func TestMapOfCopiesCells(t *testing.T) {
	f := testFrame(1)
	m := MapOf(f)
	m.Grid.Cells[1] = 99

	assert.Equal(t, 0.5, f.Grid.Cells[1])
	assert.Equal(t, 2, m.Grid.Size)
}

// =============================================================================
// Publisher
// =============================================================================

func TestPublisherLatest(t *testing.T) {
	p := NewPublisher()
	_, ok := p.Latest()
	assert.False(t, ok)

	p.PublishFrame(testFrame(1))
	p.PublishFrame(testFrame(2))

	s, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), s.Seq)
	assert.Equal(t, uint64(2), p.Stats().Frames)
}

func TestPublisherSubscribe(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(1)
	assert.Equal(t, 1, p.Stats().Subscribers)

	p.PublishFrame(testFrame(1))
	p.PublishFrame(testFrame(2)) // buffer full, dropped

	f := <-ch
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, uint64(1), p.Stats().Dropped)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, p.Stats().Subscribers)

	// Publishing after unsubscribe must not panic.
	p.PublishFrame(testFrame(3))
}

func TestFmtSector(t *testing.T) {
	assert.Equal(t, "clear", fmtSector(math.Inf(1)))
	assert.True(t, strings.HasPrefix(fmtSector(0.456), "0.46"))
}
