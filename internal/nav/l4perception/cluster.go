package l4perception

import (
	"math"
	"sort"

	"github.com/banshee-data/ecoship/internal/nav"
)

// Constants for clustering configuration
const (
	// DefaultDBSCANEps is the default neighbourhood radius in metres.
	DefaultDBSCANEps = 0.25
	// DefaultDBSCANMinPts is the default core-point threshold.
	DefaultDBSCANMinPts = 8
	// DefaultClusterMinInput is the fewest points worth clustering.
	DefaultClusterMinInput = 20
	// EstimatedPointsPerCell is used for initial spatial index capacity estimation
	EstimatedPointsPerCell = 4
)

// BoundingBox is an axis-aligned box in world coordinates.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the X extent.
func (b BoundingBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the Y extent.
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// ObstacleCluster is a group of world-frame points forming one obstacle.
// Clusters are recomputed every tick and carry no identity across ticks.
type ObstacleCluster struct {
	Points   []nav.Point `json:"-"`
	Box      BoundingBox `json:"box"`
	Centroid nav.Point   `json:"centroid"`
	Size     int         `json:"size"`
}

// SpatialIndex provides efficient neighbour queries using a regular grid.
// Cell size should match the DBSCAN eps parameter.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → point indices
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the index from a set of points.
func (si *SpatialIndex) Build(points []nav.Point) {
	si.Grid = make(map[int64][]int, len(points)/EstimatedPointsPerCell+1)
	for i, p := range points {
		cx, cy := si.cellCoords(p)
		id := cellID(cx, cy)
		si.Grid[id] = append(si.Grid[id], i)
	}
}

func (si *SpatialIndex) cellCoords(p nav.Point) (int64, int64) {
	return int64(math.Floor(p.X / si.CellSize)), int64(math.Floor(p.Y / si.CellSize))
}

// cellID packs signed cell coordinates with zigzag encoding and Szudzik's
// pairing function.
func cellID(cx, cy int64) int64 {
	zig := func(v int64) int64 {
		if v >= 0 {
			return 2 * v
		}
		return -2*v - 1
	}
	a, b := zig(cx), zig(cy)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns the indices of all points within eps of points[idx],
// including idx itself.
func (si *SpatialIndex) RegionQuery(points []nav.Point, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	cx, cy := si.cellCoords(p)

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range si.Grid[cellID(cx+dx, cy+dy)] {
				q := points[j]
				ddx, ddy := q.X-p.X, q.Y-p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, j)
				}
			}
		}
	}
	return neighbors
}

// DBSCAN performs density-based clustering. Labels: 0 unvisited, -1 noise,
// >0 cluster ID. Border points join the first cluster that reaches them.
func DBSCAN(points []nav.Point, eps float64, minPts int) []ObstacleCluster {
	if len(points) == 0 || eps <= 0 {
		return nil
	}

	n := len(points)
	labels := make([]int, n)
	clusterID := 0

	index := NewSpatialIndex(eps)
	index.Build(points)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := index.RegionQuery(points, i, eps)
		if len(neighbors) < minPts {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(points, index, labels, i, neighbors, clusterID, eps, minPts)
	}

	return buildClusters(points, labels, clusterID)
}

func expandCluster(points []nav.Point, si *SpatialIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes border point
		}
		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID
		more := si.RegionQuery(points, idx, eps)
		if len(more) >= minPts {
			neighbors = append(neighbors, more...)
		}
	}
}

func buildClusters(points []nav.Point, labels []int, maxClusterID int) []ObstacleCluster {
	members := make([][]nav.Point, maxClusterID+1)
	for i, label := range labels {
		if label > 0 {
			members[label] = append(members[label], points[i])
		}
	}

	clusters := make([]ObstacleCluster, 0, maxClusterID)
	for cid := 1; cid <= maxClusterID; cid++ {
		if len(members[cid]) == 0 {
			continue
		}
		clusters = append(clusters, computeClusterMetrics(members[cid]))
	}
	return clusters
}

func computeClusterMetrics(points []nav.Point) ObstacleCluster {
	box := BoundingBox{MinX: points[0].X, MaxX: points[0].X, MinY: points[0].Y, MaxY: points[0].Y}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
		box.MinX = math.Min(box.MinX, p.X)
		box.MaxX = math.Max(box.MaxX, p.X)
		box.MinY = math.Min(box.MinY, p.Y)
		box.MaxY = math.Max(box.MaxY, p.Y)
	}
	n := float64(len(points))
	return ObstacleCluster{
		Points:   points,
		Box:      box,
		Centroid: nav.Point{X: sumX / n, Y: sumY / n},
		Size:     len(points),
	}
}

// DBSCANClusterer implements Clusterer using DBSCAN over a spatial hash.
type DBSCANClusterer struct {
	params ClusteringParams
}

// DefaultClusteringParams returns the defaults for a 4 m map.
func DefaultClusteringParams() ClusteringParams {
	return ClusteringParams{
		Eps:        DefaultDBSCANEps,
		MinPts:     DefaultDBSCANMinPts,
		MinInput:   DefaultClusterMinInput,
		HalfExtent: 2.0,
	}
}

// NewDBSCANClusterer creates a clusterer with the given parameters.
func NewDBSCANClusterer(params ClusteringParams) *DBSCANClusterer {
	return &DBSCANClusterer{params: params}
}

// Cluster restricts the cloud to the mapped region and runs DBSCAN.
// Fewer than MinInput in-region points yields no clusters. Output is sorted
// by centroid (X, then Y).
func (c *DBSCANClusterer) Cluster(cloud nav.PointCloud) []ObstacleCluster {
	points := restrict(cloud.Points, c.params.HalfExtent)
	if len(points) < c.params.MinInput || len(points) == 0 {
		return nil
	}

	clusters := DBSCAN(points, c.params.Eps, c.params.MinPts)
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Centroid.X != clusters[j].Centroid.X {
			return clusters[i].Centroid.X < clusters[j].Centroid.X
		}
		return clusters[i].Centroid.Y < clusters[j].Centroid.Y
	})
	return clusters
}

// GetParams returns the current clustering parameters.
func (c *DBSCANClusterer) GetParams() ClusteringParams { return c.params }

// SetParams updates the clustering parameters.
func (c *DBSCANClusterer) SetParams(params ClusteringParams) { c.params = params }

func restrict(points []nav.Point, half float64) []nav.Point {
	if half <= 0 {
		return points
	}
	out := make([]nav.Point, 0, len(points))
	for _, p := range points {
		if p.X >= -half && p.X < half && p.Y >= -half && p.Y < half {
			out = append(out, p)
		}
	}
	return out
}
