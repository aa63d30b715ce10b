// Package l3grid owns Layer 3 (Grid) of the navigation data model.
//
// Responsibilities: the decaying occupancy grid built from world-frame
// points, and the wall baseline learned at startup to suppress static
// structure from obstacle logic.
// Key types: OccupancyGrid, GridSnapshot, BaselineLearner, WallBaseline.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
// No SQL/database code is allowed in this package.
package l3grid
