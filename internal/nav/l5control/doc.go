// Package l5control owns Layer 5 (Control) of the navigation data model.
//
// Responsibilities: the CRUISE/SLOW/AVOID hysteresis state machine, the
// mapping from state to throttle and steering, steering smoothing, and the
// actuation watchdog.
//
// Dependency rule: L5 may depend on L1-L4. It performs no I/O; commands
// are returned to the caller for delivery to an actuation sink.
package l5control
