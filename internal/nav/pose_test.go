package nav

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func poseNear(a, b Pose) bool {
	return math.Abs(a.X-b.X) < tol && math.Abs(a.Y-b.Y) < tol &&
		math.Abs(WrapAngle(a.Theta-b.Theta)) < tol
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		got := WrapAngle(tt.in)
		if math.Abs(got-tt.want) > tol {
			t.Errorf("WrapAngle(%f) = %f, want %f", tt.in, got, tt.want)
		}
		if got <= -math.Pi || got > math.Pi {
			t.Errorf("WrapAngle(%f) = %f outside (-π, π]", tt.in, got)
		}
	}
}

func TestPoseComposeInverse(t *testing.T) {
	p := Pose{X: 1.5, Y: -0.4, Theta: 0.7}
	q := Pose{X: -0.2, Y: 0.3, Theta: -1.1}

	if got := p.Compose(p.Inverse()); !poseNear(got, IdentityPose) {
		t.Errorf("p ∘ p⁻¹ = %+v, want identity", got)
	}
	if got := p.Compose(IdentityPose); !poseNear(got, p) {
		t.Errorf("p ∘ I = %+v, want %+v", got, p)
	}

	// Compose must agree with matrix multiplication.
	var m mat.Dense
	m.Mul(p.Matrix(), q.Matrix())
	if got, want := p.Compose(q), PoseFromMatrix(&m); !poseNear(got, want) {
		t.Errorf("Compose = %+v, matrix product = %+v", got, want)
	}
}

func TestPoseApplyMatchesTransform(t *testing.T) {
	p := Pose{X: 2, Y: 1, Theta: math.Pi / 2}
	cloud := PointCloud{Frame: FrameSensor, Points: []Point{{1, 0}, {0, 1}}}

	world := cloud.Transform(p, FrameWorld)
	if world.Frame != FrameWorld {
		t.Errorf("expected frame %q, got %q", FrameWorld, world.Frame)
	}
	want := []Point{{2, 2}, {1, 1}}
	for i, pt := range world.Points {
		if math.Abs(pt.X-want[i].X) > tol || math.Abs(pt.Y-want[i].Y) > tol {
			t.Errorf("point %d = %+v, want %+v", i, pt, want[i])
		}
		if a := p.Apply(cloud.Points[i]); math.Abs(a.X-pt.X) > tol || math.Abs(a.Y-pt.Y) > tol {
			t.Errorf("Apply disagrees with Transform at %d: %+v vs %+v", i, a, pt)
		}
	}
	// Input cloud untouched.
	if cloud.Points[0] != (Point{1, 0}) {
		t.Errorf("input cloud mutated: %+v", cloud.Points[0])
	}
}

func TestIsValidTransformMatrix(t *testing.T) {
	if !IsValidTransformMatrix(Pose{X: 3, Y: -2, Theta: 2.5}.Matrix()) {
		t.Error("expected pose matrix to be valid")
	}

	scaled := mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 1})
	if IsValidTransformMatrix(scaled) {
		t.Error("scaled matrix should be invalid")
	}

	badRow := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 1, 0, 1})
	if IsValidTransformMatrix(badRow) {
		t.Error("matrix with bad bottom row should be invalid")
	}

	if IsValidTransformMatrix(mat.NewDense(2, 2, []float64{1, 0, 0, 1})) {
		t.Error("2x2 matrix should be invalid")
	}

	nan := mat.NewDense(3, 3, []float64{1, 0, math.NaN(), 0, 1, 0, 0, 0, 1})
	if IsValidTransformMatrix(nan) {
		t.Error("matrix with NaN should be invalid")
	}
}

func TestLogStreams(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})
	defer SetLogWriters(LogWriters{})

	Opsf("state %s", "AVOID")
	Diagf("dropped tick %d", 7)
	Tracef("not captured")

	if !strings.Contains(ops.String(), "[nav] state AVOID") {
		t.Errorf("ops stream missing entry: %q", ops.String())
	}
	if !strings.Contains(diag.String(), "dropped tick 7") {
		t.Errorf("diag stream missing entry: %q", diag.String())
	}
}
