package l1scan

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
)

// BuildCloud converts validated samples into a sensor-frame point cloud.
// Order is preserved; the output has exactly one point per sample.
func BuildCloud(samples []nav.RangeSample) nav.PointCloud {
	cloud := nav.PointCloud{Frame: nav.FrameSensor, Points: make([]nav.Point, len(samples))}
	for i, s := range samples {
		sin, cos := math.Sincos(s.Angle)
		cloud.Points[i] = nav.Point{X: s.Range * cos, Y: s.Range * sin}
	}
	return cloud
}
