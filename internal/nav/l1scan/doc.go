// Package l1scan owns Layer 1 (Scan) of the navigation data model.
//
// Responsibilities: dropping invalid range samples and converting the
// survivors into a sensor-frame point cloud.
//
// Dependency rule: L1 depends only on package nav.
package l1scan
