package pipeline

import (
	"time"

	"github.com/banshee-data/ecoship/internal/config"
	"github.com/banshee-data/ecoship/internal/nav/l1scan"
	"github.com/banshee-data/ecoship/internal/nav/l2odometry"
	"github.com/banshee-data/ecoship/internal/nav/l3grid"
	"github.com/banshee-data/ecoship/internal/nav/l4perception"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
)

// Params gathers the tuning of every stage.
type Params struct {
	TickInterval     time.Duration
	SensorTimeout    time.Duration
	WatchdogTimeout  time.Duration
	BaselineDuration time.Duration // zero skips wall-baseline learning

	MinRange      float64
	Grid          l3grid.GridParams
	TrajectoryCap int

	OdometryEnabled bool
	ICP             l2odometry.ICPParams

	ClusteringEnabled bool
	Clustering        l4perception.ClusteringParams

	Hazard         l4perception.HazardParams
	BaselineBinDeg float64

	Thresholds l5control.Thresholds
	Control    l5control.ControlParams
}

// DefaultParams returns the built-in defaults.
func DefaultParams() Params {
	grid := l3grid.DefaultGridParams()
	clustering := l4perception.DefaultClusteringParams()
	clustering.HalfExtent = grid.Side / 2
	return Params{
		TickInterval:      100 * time.Millisecond,
		SensorTimeout:     80 * time.Millisecond,
		WatchdogTimeout:   l5control.DefaultWatchdogTimeout,
		BaselineDuration:  2 * time.Second,
		MinRange:          l1scan.DefaultMinRange,
		Grid:              grid,
		TrajectoryCap:     l2odometry.DefaultTrajectoryCap,
		OdometryEnabled:   true,
		ICP:               l2odometry.DefaultICPParams(),
		ClusteringEnabled: true,
		Clustering:        clustering,
		Hazard:            l4perception.DefaultHazardParams(),
		BaselineBinDeg:    l3grid.DefaultBaselineBinDeg,
		Thresholds:        l5control.DefaultThresholds(),
		Control:           l5control.DefaultControlParams(),
	}
}

// ParamsFromConfig maps a validated configuration onto stage parameters.
func ParamsFromConfig(cfg *config.NavConfig) Params {
	return Params{
		TickInterval:     cfg.GetTickInterval(),
		SensorTimeout:    cfg.GetSensorTimeout(),
		WatchdogTimeout:  cfg.GetWatchdogTimeout(),
		BaselineDuration: cfg.GetBaselineDuration(),
		MinRange:         cfg.GetMinRange(),
		Grid: l3grid.GridParams{
			Side:         cfg.GetMapSize(),
			Resolution:   cfg.GetGridResolution(),
			HitIncrement: cfg.GetGridHitIncrement(),
			Decay:        cfg.GetGridDecay(),
		},
		TrajectoryCap:   cfg.GetTrajectoryCap(),
		OdometryEnabled: cfg.GetOdometryEnabled(),
		ICP: l2odometry.ICPParams{
			MinPoints:          cfg.GetICPMinPoints(),
			MaxCorrespondence:  cfg.GetICPMaxCorrespondence(),
			MaxIterations:      cfg.GetICPMaxIterations(),
			ConvergenceEpsilon: cfg.GetICPConvergenceEpsilon(),
		},
		ClusteringEnabled: cfg.GetClusteringEnabled(),
		Clustering: l4perception.ClusteringParams{
			Eps:        cfg.GetDBSCANEps(),
			MinPts:     cfg.GetDBSCANMinPts(),
			MinInput:   cfg.GetClusterMinInput(),
			HalfExtent: cfg.GetMapSize() / 2,
		},
		Hazard: l4perception.HazardParams{
			FOVDeg:         cfg.GetFOVDeg(),
			DecisionCap:    cfg.GetDecisionCap(),
			WallTolerance:  cfg.GetWallTolerance(),
			LeftCutoffDeg:  cfg.GetLeftCutoffDeg(),
			RightCutoffDeg: cfg.GetRightCutoffDeg(),
		},
		BaselineBinDeg: cfg.GetBaselineBinDeg(),
		Thresholds: l5control.Thresholds{
			AvoidIn:  cfg.GetAvoidIn(),
			AvoidOut: cfg.GetAvoidOut(),
			SlowIn:   cfg.GetSlowIn(),
			SlowOut:  cfg.GetSlowOut(),
		},
		Control: l5control.ControlParams{
			CruiseSpeed: cfg.GetCruiseSpeed(),
			AvoidSpeed:  cfg.GetAvoidSpeed(),
			SteerMax:    cfg.GetSteerMax(),
			SteerCenter: cfg.GetSteerCenter(),
			SteerAlpha:  cfg.GetSteerAlpha(),
		},
	}
}
