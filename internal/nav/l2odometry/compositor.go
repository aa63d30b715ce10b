package l2odometry

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
)

// DefaultTrajectoryCap is the number of positions kept in the trajectory.
const DefaultTrajectoryCap = 4000

// Trajectory is a bounded FIFO of past positions. When full, the oldest
// entry is evicted.
type Trajectory struct {
	buf   []nav.Point
	start int
	n     int
}

// NewTrajectory returns a trajectory holding at most capacity points,
// seeded with the origin.
func NewTrajectory(capacity int) *Trajectory {
	if capacity < 1 {
		capacity = 1
	}
	t := &Trajectory{buf: make([]nav.Point, capacity)}
	t.Append(nav.Point{})
	return t
}

// Append adds a point, evicting the oldest when at capacity.
func (t *Trajectory) Append(p nav.Point) {
	if t.n < len(t.buf) {
		t.buf[(t.start+t.n)%len(t.buf)] = p
		t.n++
		return
	}
	t.buf[t.start] = p
	t.start = (t.start + 1) % len(t.buf)
}

// Len returns the number of stored points.
func (t *Trajectory) Len() int { return t.n }

// Cap returns the capacity.
func (t *Trajectory) Cap() int { return len(t.buf) }

// Points returns a copy of the stored points, oldest first.
func (t *Trajectory) Points() []nav.Point {
	out := make([]nav.Point, t.n)
	for i := 0; i < t.n; i++ {
		out[i] = t.buf[(t.start+i)%len(t.buf)]
	}
	return out
}

// Last returns the most recent point.
func (t *Trajectory) Last() nav.Point {
	return t.buf[(t.start+t.n-1)%len(t.buf)]
}

// Compositor accumulates incremental transforms into the global pose and
// records the trajectory. It is the only writer of the global pose.
type Compositor struct {
	pose       nav.Pose
	trajectory *Trajectory
}

// NewCompositor starts at the origin with a trajectory of the given capacity.
func NewCompositor(trajectoryCap int) *Compositor {
	return &Compositor{trajectory: NewTrajectory(trajectoryCap)}
}

// Apply composes inc onto the global pose (T_global ← T_global · T_inc) and
// appends the new translation to the trajectory. A non-finite increment is
// treated as the identity.
func (c *Compositor) Apply(inc nav.Pose) nav.Pose {
	if !finite(inc.X) || !finite(inc.Y) || !finite(inc.Theta) {
		nav.Diagf("discarding non-finite odometry increment %+v", inc)
		inc = nav.IdentityPose
	}
	c.pose = c.pose.Compose(inc)
	c.trajectory.Append(nav.Point{X: c.pose.X, Y: c.pose.Y})
	return c.pose
}

// Pose returns the current global pose.
func (c *Compositor) Pose() nav.Pose { return c.pose }

// Trajectory returns a copy of the trajectory, oldest first.
func (c *Compositor) Trajectory() []nav.Point { return c.trajectory.Points() }

// TrajectoryLen returns the number of stored trajectory points.
func (c *Compositor) TrajectoryLen() int { return c.trajectory.Len() }

// Reset returns the pose to the origin and reseeds the trajectory.
func (c *Compositor) Reset() {
	c.pose = nav.IdentityPose
	c.trajectory = NewTrajectory(c.trajectory.Cap())
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
