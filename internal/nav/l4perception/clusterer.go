package l4perception

import "github.com/banshee-data/ecoship/internal/nav"

// Clusterer abstracts the clustering implementation.
type Clusterer interface {
	// Cluster groups world-frame points into obstacles.
	// Clusters are sorted deterministically by centroid (X, then Y).
	Cluster(cloud nav.PointCloud) []ObstacleCluster

	// GetParams returns the current clustering parameters.
	GetParams() ClusteringParams

	// SetParams updates the clustering parameters.
	SetParams(params ClusteringParams)
}

// ClusteringParams holds clustering algorithm parameters.
type ClusteringParams struct {
	Eps        float64 // Neighbourhood radius in metres
	MinPts     int     // Minimum neighbours (including the point) for a core point
	MinInput   int     // Below this many in-region points, no clustering is attempted
	HalfExtent float64 // Points outside [-HalfExtent, HalfExtent)² are ignored; 0 disables
}

// NoopClusterer never reports obstacles. It is the fallback when clustering
// is disabled.
type NoopClusterer struct {
	params ClusteringParams
}

// Cluster returns nil.
func (c *NoopClusterer) Cluster(nav.PointCloud) []ObstacleCluster { return nil }

// GetParams returns the stored parameters.
func (c *NoopClusterer) GetParams() ClusteringParams { return c.params }

// SetParams stores the parameters.
func (c *NoopClusterer) SetParams(params ClusteringParams) { c.params = params }

var (
	_ Clusterer = (*DBSCANClusterer)(nil)
	_ Clusterer = (*NoopClusterer)(nil)
)
