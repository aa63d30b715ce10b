// Package nav holds the data model shared by every layer of the navigation
// core: range samples, sweeps, point clouds and planar poses.
//
// Layers live in sub-packages and depend only downward:
//
//	l1scan       range validation and point-cloud construction
//	l2odometry   scan matching, pose composition, trajectory
//	l3grid       decaying occupancy grid and wall baseline
//	l4perception obstacle clustering and hazard sectors
//	l5control    avoidance state machine, steering smoothing, watchdog
//	pipeline     per-tick orchestration and the fixed-rate scheduler
//
// No I/O happens below the pipeline package; sensors, actuators and
// telemetry are injected.
package nav
