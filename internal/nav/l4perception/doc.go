// Package l4perception owns Layer 4 (Perception) of the navigation data model.
//
// Responsibilities: DBSCAN obstacle clustering over world-frame points and
// reduction of the forward scan to per-sector hazard distances.
// Key types: ObstacleCluster, Clusterer, HazardSectors, HazardEvaluator.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
// No SQL/database code is allowed in this package.
package l4perception
