// Package l2odometry owns Layer 2 (Odometry) of the navigation data model.
//
// Responsibilities: estimating incremental motion between consecutive
// scans, composing it into the global pose, and keeping a bounded
// trajectory history.
// Key types: Registrar, ICPRegistrar, Compositor, Trajectory.
//
// Dependency rule: L2 may depend on L1, never on L3+.
package l2odometry
