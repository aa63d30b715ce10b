package l2odometry

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Constants for scan matching
const (
	// DefaultICPMinPoints is the fewest points either cloud may have before
	// matching is skipped.
	DefaultICPMinPoints = 50
	// DefaultICPMaxCorrespondence is the largest nearest-neighbour distance
	// accepted as a correspondence, in metres.
	DefaultICPMaxCorrespondence = 0.30
	// DefaultICPMaxIterations caps the number of alignment rounds.
	DefaultICPMaxIterations = 30
	// DefaultICPConvergenceEpsilon stops iterating once an update is smaller
	// than this (metres plus radians).
	DefaultICPConvergenceEpsilon = 1e-6

	minCorrespondences = 3
)

// ICPParams configures the point-to-point ICP registrar.
type ICPParams struct {
	MinPoints          int
	MaxCorrespondence  float64
	MaxIterations      int
	ConvergenceEpsilon float64
}

// DefaultICPParams returns the defaults tuned for a 10 Hz planar lidar.
func DefaultICPParams() ICPParams {
	return ICPParams{
		MinPoints:          DefaultICPMinPoints,
		MaxCorrespondence:  DefaultICPMaxCorrespondence,
		MaxIterations:      DefaultICPMaxIterations,
		ConvergenceEpsilon: DefaultICPConvergenceEpsilon,
	}
}

// ICPRegistrar aligns consecutive clouds with point-to-point ICP.
// Nearest neighbours come from a k-d tree over the previous cloud; each
// round solves the planar rigid alignment of the correspondences in closed
// form and composes it onto the running estimate.
type ICPRegistrar struct {
	params ICPParams
}

// NewICPRegistrar creates a registrar with the given parameters.
func NewICPRegistrar(params ICPParams) *ICPRegistrar {
	return &ICPRegistrar{params: params}
}

// Params returns the registrar's parameters.
func (r *ICPRegistrar) Params() ICPParams { return r.params }

// Register aligns curr onto prev. With no previous cloud or fewer than
// MinPoints in either cloud it returns exactly the identity.
func (r *ICPRegistrar) Register(prev, curr nav.PointCloud) Registration {
	if prev.Len() < r.params.MinPoints || curr.Len() < r.params.MinPoints {
		return Registration{Transform: nav.IdentityPose, Fallback: true}
	}

	// kdtree.New reorders its input, so build it over a copy.
	target := make(kdtree.Points, prev.Len())
	for i, p := range prev.Points {
		target[i] = kdtree.Point{p.X, p.Y}
	}
	tree := kdtree.New(target, false)

	maxDist2 := r.params.MaxCorrespondence * r.params.MaxCorrespondence
	src := make([]nav.Point, curr.Len())
	dst := make([]nav.Point, 0, curr.Len())
	matched := make([]nav.Point, 0, curr.Len())

	T := nav.IdentityPose
	result := Registration{}
	for iter := 0; iter < r.params.MaxIterations; iter++ {
		for i, p := range curr.Points {
			src[i] = T.Apply(p)
		}

		matched = matched[:0]
		dst = dst[:0]
		var sumDist2 float64
		for _, p := range src {
			nearest, d2 := tree.Nearest(kdtree.Point{p.X, p.Y})
			if nearest == nil || d2 > maxDist2 {
				continue
			}
			q := nearest.(kdtree.Point)
			matched = append(matched, p)
			dst = append(dst, nav.Point{X: q[0], Y: q[1]})
			sumDist2 += d2
		}

		result.Iterations = iter + 1
		result.Correspondences = len(matched)
		if len(matched) > 0 {
			result.RMSE = math.Sqrt(sumDist2 / float64(len(matched)))
		}
		if len(matched) < minCorrespondences {
			break
		}

		inc := alignPairs(matched, dst)
		T = inc.Compose(T)

		if math.Abs(inc.X)+math.Abs(inc.Y)+math.Abs(inc.Theta) < r.params.ConvergenceEpsilon {
			result.Converged = true
			break
		}
	}

	result.Transform = T
	return result
}

// alignPairs returns the rigid transform minimising Σ|R·p + t − q|² over
// paired points. Identical inputs yield exactly the identity.
func alignPairs(src, dst []nav.Point) nav.Pose {
	n := float64(len(src))
	var spx, spy, sqx, sqy float64
	for i := range src {
		spx += src[i].X
		spy += src[i].Y
		sqx += dst[i].X
		sqy += dst[i].Y
	}
	cpx, cpy := spx/n, spy/n
	cqx, cqy := sqx/n, sqy/n

	var sxx, sxy float64 // Σ p·q and Σ p×q over centred coordinates
	for i := range src {
		px, py := src[i].X-cpx, src[i].Y-cpy
		qx, qy := dst[i].X-cqx, dst[i].Y-cqy
		sxx += px*qx + py*qy
		sxy += px*qy - py*qx
	}

	theta := math.Atan2(sxy, sxx)
	sin, cos := math.Sincos(theta)
	return nav.Pose{
		X:     cqx - (cos*cpx - sin*cpy),
		Y:     cqy - (sin*cpx + cos*cpy),
		Theta: theta,
	}
}
