// Package pipeline runs the navigation loop. It owns the navigation state
// (pose, trajectory, occupancy grid, state machine, watchdog) and wires the
// layer packages together:
//
//	sweep → l1scan → l2odometry → l3grid
//	                            → l4perception (clusters, hazard sectors)
//	                            → l5control → actuation
//
// This package is the composition root: it imports the layer packages, and
// none of them import pipeline. External readers receive each tick's Frame
// through a PublishSink; they never touch the loop's state directly.
package pipeline
