package nav

import (
	"math"
	"time"
)

// RangeSample is one range-bearing return from the rangefinder.
// Angle is in radians, zero straight ahead and positive toward starboard
// (clockwise, the rangefinder's rotation sense). Range is in metres. Invalid returns carry a
// non-finite or non-positive Range until validation drops them.
type RangeSample struct {
	Angle float64 `json:"angle"`
	Range float64 `json:"range"`
}

// Sweep is the raw output of one sensor rotation.
type Sweep struct {
	Timestamp time.Time
	Samples   []RangeSample
	Source    string // driver that produced the sweep, e.g. "ydlidar", "sim"
}

// Len returns the number of samples in the sweep.
func (s Sweep) Len() int { return len(s.Samples) }

// FrameID names the coordinate frame a point cloud is expressed in.
type FrameID string

const (
	// FrameSensor is centred on the rangefinder, +X forward, +Y starboard.
	FrameSensor FrameID = "sensor"
	// FrameWorld is the odometry frame fixed at the start of the run.
	FrameWorld FrameID = "world"
)

// Point is a planar Cartesian point in metres.
type Point struct {
	X, Y float64
}

// PointCloud is an ordered set of points tagged with their frame.
// Clouds are treated as immutable; transforms return new clouds.
type PointCloud struct {
	Frame  FrameID
	Points []Point
}

// Len returns the number of points.
func (c PointCloud) Len() int { return len(c.Points) }

// Transform returns a new cloud with every point mapped through p,
// tagged with the given frame.
func (c PointCloud) Transform(p Pose, frame FrameID) PointCloud {
	out := PointCloud{Frame: frame, Points: make([]Point, len(c.Points))}
	sin, cos := math.Sincos(p.Theta)
	for i, pt := range c.Points {
		out.Points[i] = Point{
			X: p.X + cos*pt.X - sin*pt.Y,
			Y: p.Y + sin*pt.X + cos*pt.Y,
		}
	}
	return out
}

// WrapAngle maps an angle in radians into (-π, π].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// DegToRad converts degrees to radians.
func DegToRad(d float64) float64 { return d * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(r float64) float64 { return r * 180 / math.Pi }
