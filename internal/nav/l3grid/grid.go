package l3grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
)

// Constants for the occupancy grid
const (
	DefaultMapSize      = 4.0  // metres per side
	DefaultResolution   = 0.05 // metres per cell
	DefaultHitIncrement = 0.35
	DefaultDecay        = 0.95
	MinMapSize          = 2.0
	MaxMapSize          = 20.0
)

// GridParams configures an OccupancyGrid.
type GridParams struct {
	Side         float64 // side length of the mapped square, centred on the origin
	Resolution   float64 // cell size
	HitIncrement float64 // added to a cell's weight when hit, clamped to 1
	Decay        float64 // every cell is multiplied by this once per tick
}

// DefaultGridParams returns the defaults for a small pool-scale map.
func DefaultGridParams() GridParams {
	return GridParams{
		Side:         DefaultMapSize,
		Resolution:   DefaultResolution,
		HitIncrement: DefaultHitIncrement,
		Decay:        DefaultDecay,
	}
}

// Validate checks the parameters.
func (p GridParams) Validate() error {
	if p.Side < MinMapSize || p.Side > MaxMapSize {
		return fmt.Errorf("map side %.2f outside [%.0f, %.0f]", p.Side, MinMapSize, MaxMapSize)
	}
	if p.Resolution <= 0 || p.Resolution > p.Side {
		return fmt.Errorf("resolution %.3f must be in (0, side]", p.Resolution)
	}
	if p.HitIncrement <= 0 || p.HitIncrement > 1 {
		return fmt.Errorf("hit increment %.3f must be in (0, 1]", p.HitIncrement)
	}
	if p.Decay <= 0 || p.Decay >= 1 {
		return fmt.Errorf("decay %.3f must be in (0, 1)", p.Decay)
	}
	return nil
}

// OccupancyGrid is a square grid of occupancy weights in [0, 1] covering
// [-Side/2, Side/2) on both axes. Rows are Y, columns are X.
type OccupancyGrid struct {
	params GridParams
	n      int
	cells  []float64
	hit    []bool // scratch: cells hit during the current Integrate call
}

// NewOccupancyGrid creates an empty grid.
func NewOccupancyGrid(params GridParams) (*OccupancyGrid, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := int(math.Round(params.Side / params.Resolution))
	if n < 1 {
		n = 1
	}
	return &OccupancyGrid{
		params: params,
		n:      n,
		cells:  make([]float64, n*n),
		hit:    make([]bool, n*n),
	}, nil
}

// Params returns the grid parameters.
func (g *OccupancyGrid) Params() GridParams { return g.params }

// Size returns the number of cells per axis.
func (g *OccupancyGrid) Size() int { return g.n }

// HalfExtent returns half the side length.
func (g *OccupancyGrid) HalfExtent() float64 { return g.params.Side / 2 }

// CellFor returns the cell indices for a world-frame point, and false when
// the point falls outside the grid.
func (g *OccupancyGrid) CellFor(p nav.Point) (ix, iy int, ok bool) {
	half := g.HalfExtent()
	fx := math.Floor((p.X + half) / g.params.Resolution)
	fy := math.Floor((p.Y + half) / g.params.Resolution)
	if math.IsNaN(fx) || math.IsNaN(fy) {
		return 0, 0, false
	}
	if fx < 0 || fy < 0 || fx >= float64(g.n) || fy >= float64(g.n) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// Contains reports whether a world-frame point falls inside the grid.
func (g *OccupancyGrid) Contains(p nav.Point) bool {
	_, _, ok := g.CellFor(p)
	return ok
}

// Integrate applies one tick: every distinct in-bounds cell hit by the
// cloud gains HitIncrement (clamped to 1), then every cell decays. Decay is
// applied even when the cloud is empty. Returns the number of cells hit.
func (g *OccupancyGrid) Integrate(cloud nav.PointCloud) int {
	hits := 0
	for _, p := range cloud.Points {
		ix, iy, ok := g.CellFor(p)
		if !ok {
			continue
		}
		idx := iy*g.n + ix
		if g.hit[idx] {
			continue
		}
		g.hit[idx] = true
		hits++
		g.cells[idx] = math.Min(1, g.cells[idx]+g.params.HitIncrement)
	}

	for i := range g.cells {
		g.cells[i] *= g.params.Decay
		g.hit[i] = false
	}
	return hits
}

// Decay applies one tick with no observations.
func (g *OccupancyGrid) Decay() {
	g.Integrate(nav.PointCloud{})
}

// At returns the weight of cell (ix, iy), or 0 if out of range.
func (g *OccupancyGrid) At(ix, iy int) float64 {
	if ix < 0 || iy < 0 || ix >= g.n || iy >= g.n {
		return 0
	}
	return g.cells[iy*g.n+ix]
}

// Reset clears every cell.
func (g *OccupancyGrid) Reset() {
	for i := range g.cells {
		g.cells[i] = 0
	}
}

// Configure recreates the grid when side or resolution change. Increment
// and decay are updated in place. Returns true when the grid was recreated.
func (g *OccupancyGrid) Configure(params GridParams) (bool, error) {
	if err := params.Validate(); err != nil {
		return false, err
	}
	if params.Side == g.params.Side && params.Resolution == g.params.Resolution {
		g.params = params
		return false, nil
	}
	fresh, err := NewOccupancyGrid(params)
	if err != nil {
		return false, err
	}
	*g = *fresh
	nav.Diagf("occupancy grid recreated: side=%.2fm res=%.3fm cells=%dx%d", params.Side, params.Resolution, g.n, g.n)
	return true, nil
}

// GridSnapshot is a read-only copy of the grid for telemetry.
type GridSnapshot struct {
	Side       float64   `json:"side"`
	Resolution float64   `json:"resolution"`
	Size       int       `json:"size"`
	Cells      []float64 `json:"cells"` // row-major, row = Y index
}

// Snapshot returns a deep copy of the grid.
func (g *OccupancyGrid) Snapshot() GridSnapshot {
	cells := make([]float64, len(g.cells))
	copy(cells, g.cells)
	return GridSnapshot{
		Side:       g.params.Side,
		Resolution: g.params.Resolution,
		Size:       g.n,
		Cells:      cells,
	}
}

// At returns the weight of cell (ix, iy) in the snapshot.
func (s GridSnapshot) At(ix, iy int) float64 {
	if ix < 0 || iy < 0 || ix >= s.Size || iy >= s.Size {
		return 0
	}
	return s.Cells[iy*s.Size+ix]
}

// CellCenter returns the world coordinates of the centre of cell (ix, iy).
func (s GridSnapshot) CellCenter(ix, iy int) nav.Point {
	half := s.Side / 2
	return nav.Point{
		X: -half + (float64(ix)+0.5)*s.Resolution,
		Y: -half + (float64(iy)+0.5)*s.Resolution,
	}
}

// Occupied returns the number of cells with weight at or above threshold.
func (s GridSnapshot) Occupied(threshold float64) int {
	n := 0
	for _, w := range s.Cells {
		if w >= threshold {
			n++
		}
	}
	return n
}
