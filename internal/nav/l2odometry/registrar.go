package l2odometry

import (
	"github.com/banshee-data/ecoship/internal/nav"
)

// Registration is the outcome of aligning the current scan against the
// previous one. Transform maps current-scan points into the previous scan's
// frame, which is also the vessel's motion between the two scans.
type Registration struct {
	Transform       nav.Pose
	Iterations      int
	Correspondences int
	RMSE            float64 // over the final correspondence set, metres
	Converged       bool
	Fallback        bool // true when the identity was returned without matching
}

// Registrar estimates the rigid motion between two consecutive clouds.
// Implementations must return exactly the identity when either cloud has
// too little geometry to match.
type Registrar interface {
	Register(prev, curr nav.PointCloud) Registration
}

// IdentityRegistrar always reports no motion. It is the fallback when scan
// matching is disabled.
type IdentityRegistrar struct{}

// Register returns the identity transform.
func (IdentityRegistrar) Register(prev, curr nav.PointCloud) Registration {
	return Registration{Transform: nav.IdentityPose, Fallback: true}
}

var (
	_ Registrar = IdentityRegistrar{}
	_ Registrar = (*ICPRegistrar)(nil)
)
