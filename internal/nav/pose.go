package nav

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose is a planar rigid transform: translation (X, Y) in metres and
// heading Theta in radians, wrapped to (-π, π]. The same type describes the
// vessel's global pose and the incremental motion between two scans.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// IdentityPose is the zero transform.
var IdentityPose = Pose{}

// IsIdentity reports whether p is exactly the identity.
func (p Pose) IsIdentity() bool {
	return p.X == 0 && p.Y == 0 && p.Theta == 0
}

// Compose returns p ∘ q: apply q in p's frame.
func (p Pose) Compose(q Pose) Pose {
	sin, cos := math.Sincos(p.Theta)
	return Pose{
		X:     p.X + cos*q.X - sin*q.Y,
		Y:     p.Y + sin*q.X + cos*q.Y,
		Theta: WrapAngle(p.Theta + q.Theta),
	}
}

// Inverse returns the transform that undoes p.
func (p Pose) Inverse() Pose {
	sin, cos := math.Sincos(p.Theta)
	return Pose{
		X:     -(cos*p.X + sin*p.Y),
		Y:     -(-sin*p.X + cos*p.Y),
		Theta: WrapAngle(-p.Theta),
	}
}

// Apply maps a point through p.
func (p Pose) Apply(pt Point) Point {
	sin, cos := math.Sincos(p.Theta)
	return Point{
		X: p.X + cos*pt.X - sin*pt.Y,
		Y: p.Y + sin*pt.X + cos*pt.Y,
	}
}

// Matrix returns p as a 3x3 homogeneous transform (row-major):
//
//	[cos -sin x]
//	[sin  cos y]
//	[ 0    0  1]
func (p Pose) Matrix() *mat.Dense {
	sin, cos := math.Sincos(p.Theta)
	return mat.NewDense(3, 3, []float64{
		cos, -sin, p.X,
		sin, cos, p.Y,
		0, 0, 1,
	})
}

// PoseFromMatrix extracts a Pose from a 3x3 homogeneous transform.
func PoseFromMatrix(m mat.Matrix) Pose {
	return Pose{
		X:     m.At(0, 2),
		Y:     m.At(1, 2),
		Theta: WrapAngle(math.Atan2(m.At(1, 0), m.At(0, 0))),
	}
}

// IsValidTransformMatrix checks that m is a proper planar rigid transform:
// 3x3, bottom row [0 0 1], rotation block with determinant ≈ 1.
func IsValidTransformMatrix(m mat.Matrix) bool {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return false
	}
	const eps = 1e-6
	if math.Abs(m.At(2, 0)) > eps || math.Abs(m.At(2, 1)) > eps || math.Abs(m.At(2, 2)-1) > eps {
		return false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	rot := mat.NewDense(2, 2, []float64{m.At(0, 0), m.At(0, 1), m.At(1, 0), m.At(1, 1)})
	return math.Abs(mat.Det(rot)-1) < eps
}
