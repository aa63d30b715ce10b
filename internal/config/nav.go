package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical navigation defaults file.
const DefaultConfigPath = "config/nav.defaults.json"

// NavConfig is the root configuration for the navigation core.
// Every field is optional: the Get* accessors supply defaults for anything
// omitted from the JSON, so partial files are safe. Configuration is static
// for the lifetime of a run.
type NavConfig struct {
	// Loop timing
	TickInterval     *string `json:"tick_interval,omitempty"`     // duration string like "100ms"
	SensorTimeout    *string `json:"sensor_timeout,omitempty"`    // bound on a single sensor read
	WatchdogTimeout  *string `json:"watchdog_timeout,omitempty"`  // safe stop after this much silence
	BaselineDuration *string `json:"baseline_duration,omitempty"` // stationary wall-learning window

	// Range validation and mapping
	MinRange         *float64 `json:"min_range,omitempty"`
	MapSize          *float64 `json:"map_size,omitempty"` // side length of the square map in metres
	GridResolution   *float64 `json:"grid_resolution,omitempty"`
	GridHitIncrement *float64 `json:"grid_hit_increment,omitempty"`
	GridDecay        *float64 `json:"grid_decay,omitempty"` // multiplicative per-tick decay factor
	TrajectoryCap    *int     `json:"trajectory_cap,omitempty"`

	// Scan matching
	OdometryEnabled       *bool    `json:"odometry_enabled,omitempty"`
	ICPMinPoints          *int     `json:"icp_min_points,omitempty"`
	ICPMaxCorrespondence  *float64 `json:"icp_max_correspondence,omitempty"`
	ICPMaxIterations      *int     `json:"icp_max_iterations,omitempty"`
	ICPConvergenceEpsilon *float64 `json:"icp_convergence_epsilon,omitempty"`

	// Obstacle clustering
	ClusteringEnabled *bool    `json:"clustering_enabled,omitempty"`
	DBSCANEps         *float64 `json:"dbscan_eps,omitempty"`
	DBSCANMinPts      *int     `json:"dbscan_min_pts,omitempty"`
	ClusterMinInput   *int     `json:"cluster_min_input,omitempty"`

	// Hazard sectors
	FOVDeg         *float64 `json:"fov_deg,omitempty"`
	DecisionCap    *float64 `json:"decision_cap,omitempty"`
	WallTolerance  *float64 `json:"wall_tolerance,omitempty"`
	LeftCutoffDeg  *float64 `json:"left_cutoff_deg,omitempty"`
	RightCutoffDeg *float64 `json:"right_cutoff_deg,omitempty"`
	BaselineBinDeg *float64 `json:"baseline_bin_deg,omitempty"`

	// Avoidance
	AvoidIn     *float64 `json:"avoid_in,omitempty"`
	AvoidOut    *float64 `json:"avoid_out,omitempty"`
	SlowIn      *float64 `json:"slow_in,omitempty"`
	SlowOut     *float64 `json:"slow_out,omitempty"`
	CruiseSpeed *float64 `json:"cruise_speed,omitempty"`
	AvoidSpeed  *float64 `json:"avoid_speed,omitempty"`
	SteerMax    *float64 `json:"steer_max,omitempty"`
	SteerCenter *float64 `json:"steer_center,omitempty"`
	SteerAlpha  *float64 `json:"steer_alpha,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNavConfig returns a NavConfig with all fields set to nil.
func EmptyNavConfig() *NavConfig {
	return &NavConfig{}
}

// DefaultNavConfig returns a NavConfig with every field populated from the
// built-in defaults. Useful for writing a fresh defaults file.
func DefaultNavConfig() *NavConfig {
	c := EmptyNavConfig()
	return &NavConfig{
		TickInterval:     ptrString(c.GetTickInterval().String()),
		SensorTimeout:    ptrString(c.GetSensorTimeout().String()),
		WatchdogTimeout:  ptrString(c.GetWatchdogTimeout().String()),
		BaselineDuration: ptrString(c.GetBaselineDuration().String()),

		MinRange:         ptrFloat64(c.GetMinRange()),
		MapSize:          ptrFloat64(c.GetMapSize()),
		GridResolution:   ptrFloat64(c.GetGridResolution()),
		GridHitIncrement: ptrFloat64(c.GetGridHitIncrement()),
		GridDecay:        ptrFloat64(c.GetGridDecay()),
		TrajectoryCap:    ptrInt(c.GetTrajectoryCap()),

		OdometryEnabled:       ptrBool(c.GetOdometryEnabled()),
		ICPMinPoints:          ptrInt(c.GetICPMinPoints()),
		ICPMaxCorrespondence:  ptrFloat64(c.GetICPMaxCorrespondence()),
		ICPMaxIterations:      ptrInt(c.GetICPMaxIterations()),
		ICPConvergenceEpsilon: ptrFloat64(c.GetICPConvergenceEpsilon()),

		ClusteringEnabled: ptrBool(c.GetClusteringEnabled()),
		DBSCANEps:         ptrFloat64(c.GetDBSCANEps()),
		DBSCANMinPts:      ptrInt(c.GetDBSCANMinPts()),
		ClusterMinInput:   ptrInt(c.GetClusterMinInput()),

		FOVDeg:         ptrFloat64(c.GetFOVDeg()),
		DecisionCap:    ptrFloat64(c.GetDecisionCap()),
		WallTolerance:  ptrFloat64(c.GetWallTolerance()),
		LeftCutoffDeg:  ptrFloat64(c.GetLeftCutoffDeg()),
		RightCutoffDeg: ptrFloat64(c.GetRightCutoffDeg()),
		BaselineBinDeg: ptrFloat64(c.GetBaselineBinDeg()),

		AvoidIn:     ptrFloat64(c.GetAvoidIn()),
		AvoidOut:    ptrFloat64(c.GetAvoidOut()),
		SlowIn:      ptrFloat64(c.GetSlowIn()),
		SlowOut:     ptrFloat64(c.GetSlowOut()),
		CruiseSpeed: ptrFloat64(c.GetCruiseSpeed()),
		AvoidSpeed:  ptrFloat64(c.GetAvoidSpeed()),
		SteerMax:    ptrFloat64(c.GetSteerMax()),
		SteerCenter: ptrFloat64(c.GetSteerCenter()),
		SteerAlpha:  ptrFloat64(c.GetSteerAlpha()),
	}
}

// LoadNavConfig loads a NavConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadNavConfig(path string) (*NavConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNavConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *NavConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/nav/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/nav/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadNavConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable. Ordering
// constraints are checked on the effective values, so a file that overrides
// one threshold is validated against the defaults of the others.
func (c *NavConfig) Validate() error {
	durations := map[string]*string{
		"tick_interval":     c.TickInterval,
		"sensor_timeout":    c.SensorTimeout,
		"watchdog_timeout":  c.WatchdogTimeout,
		"baseline_duration": c.BaselineDuration,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.GetTickInterval() <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	if size := c.GetMapSize(); size < 2 || size > 20 {
		return fmt.Errorf("map_size must be between 2 and 20 metres, got %f", size)
	}
	if res := c.GetGridResolution(); res <= 0 || res > c.GetMapSize() {
		return fmt.Errorf("grid_resolution must be in (0, map_size], got %f", res)
	}
	if inc := c.GetGridHitIncrement(); inc <= 0 || inc > 1 {
		return fmt.Errorf("grid_hit_increment must be in (0, 1], got %f", inc)
	}
	if decay := c.GetGridDecay(); decay <= 0 || decay >= 1 {
		return fmt.Errorf("grid_decay must be in (0, 1), got %f", decay)
	}
	if c.GetMinRange() < 0 {
		return fmt.Errorf("min_range must be non-negative, got %f", c.GetMinRange())
	}
	if c.GetTrajectoryCap() < 1 {
		return fmt.Errorf("trajectory_cap must be at least 1, got %d", c.GetTrajectoryCap())
	}

	if c.GetICPMinPoints() < 3 {
		return fmt.Errorf("icp_min_points must be at least 3, got %d", c.GetICPMinPoints())
	}
	if c.GetICPMaxCorrespondence() <= 0 {
		return fmt.Errorf("icp_max_correspondence must be positive, got %f", c.GetICPMaxCorrespondence())
	}
	if c.GetICPMaxIterations() < 1 {
		return fmt.Errorf("icp_max_iterations must be at least 1, got %d", c.GetICPMaxIterations())
	}

	if c.GetDBSCANEps() <= 0 {
		return fmt.Errorf("dbscan_eps must be positive, got %f", c.GetDBSCANEps())
	}
	if c.GetDBSCANMinPts() < 1 {
		return fmt.Errorf("dbscan_min_pts must be at least 1, got %d", c.GetDBSCANMinPts())
	}

	if fov := c.GetFOVDeg(); fov <= 0 || fov > 360 {
		return fmt.Errorf("fov_deg must be in (0, 360], got %f", fov)
	}
	if c.GetDecisionCap() <= 0 {
		return fmt.Errorf("decision_cap must be positive, got %f", c.GetDecisionCap())
	}
	if c.GetWallTolerance() < 0 {
		return fmt.Errorf("wall_tolerance must be non-negative, got %f", c.GetWallTolerance())
	}
	if c.GetLeftCutoffDeg() > c.GetRightCutoffDeg() {
		return fmt.Errorf("left_cutoff_deg (%f) must not exceed right_cutoff_deg (%f)",
			c.GetLeftCutoffDeg(), c.GetRightCutoffDeg())
	}
	if c.GetBaselineBinDeg() <= 0 {
		return fmt.Errorf("baseline_bin_deg must be positive, got %f", c.GetBaselineBinDeg())
	}

	ain, aout, sin, sout := c.GetAvoidIn(), c.GetAvoidOut(), c.GetSlowIn(), c.GetSlowOut()
	if !(ain < aout && aout <= sin && sin < sout) {
		return fmt.Errorf("thresholds must satisfy avoid_in < avoid_out <= slow_in < slow_out, got %.2f/%.2f/%.2f/%.2f",
			ain, aout, sin, sout)
	}
	if c.GetAvoidSpeed() < 0 || c.GetCruiseSpeed() > 100 || c.GetAvoidSpeed() > c.GetCruiseSpeed() {
		return fmt.Errorf("speeds must satisfy 0 <= avoid_speed <= cruise_speed <= 100, got %.1f/%.1f",
			c.GetAvoidSpeed(), c.GetCruiseSpeed())
	}
	if c.GetSteerCenter()-c.GetSteerMax() < 0 || c.GetSteerCenter()+c.GetSteerMax() > 180 {
		return fmt.Errorf("steer_center ± steer_max must stay within 0..180 degrees")
	}
	if a := c.GetSteerAlpha(); a <= 0 || a > 1 {
		return fmt.Errorf("steer_alpha must be in (0, 1], got %f", a)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetTickInterval returns the control loop period (10 Hz by default).
func (c *NavConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 100*time.Millisecond)
}

// GetSensorTimeout returns the bound on a single sensor read.
func (c *NavConfig) GetSensorTimeout() time.Duration {
	return durationOr(c.SensorTimeout, 80*time.Millisecond)
}

// GetWatchdogTimeout returns the actuation watchdog timeout.
func (c *NavConfig) GetWatchdogTimeout() time.Duration {
	return durationOr(c.WatchdogTimeout, 2*time.Second)
}

// GetBaselineDuration returns the stationary wall-learning window.
func (c *NavConfig) GetBaselineDuration() time.Duration {
	return durationOr(c.BaselineDuration, 2*time.Second)
}

func (c *NavConfig) GetMinRange() float64         { return floatOr(c.MinRange, 0.05) }
func (c *NavConfig) GetMapSize() float64          { return floatOr(c.MapSize, 4.0) }
func (c *NavConfig) GetGridResolution() float64   { return floatOr(c.GridResolution, 0.05) }
func (c *NavConfig) GetGridHitIncrement() float64 { return floatOr(c.GridHitIncrement, 0.35) }
func (c *NavConfig) GetGridDecay() float64        { return floatOr(c.GridDecay, 0.95) }
func (c *NavConfig) GetTrajectoryCap() int        { return intOr(c.TrajectoryCap, 4000) }

func (c *NavConfig) GetOdometryEnabled() bool         { return boolOr(c.OdometryEnabled, true) }
func (c *NavConfig) GetICPMinPoints() int             { return intOr(c.ICPMinPoints, 50) }
func (c *NavConfig) GetICPMaxCorrespondence() float64 { return floatOr(c.ICPMaxCorrespondence, 0.30) }
func (c *NavConfig) GetICPMaxIterations() int         { return intOr(c.ICPMaxIterations, 30) }

// GetICPConvergenceEpsilon returns the update magnitude below which ICP stops
// iterating early.
func (c *NavConfig) GetICPConvergenceEpsilon() float64 {
	return floatOr(c.ICPConvergenceEpsilon, 1e-6)
}

func (c *NavConfig) GetClusteringEnabled() bool { return boolOr(c.ClusteringEnabled, true) }
func (c *NavConfig) GetDBSCANEps() float64      { return floatOr(c.DBSCANEps, 0.25) }
func (c *NavConfig) GetDBSCANMinPts() int       { return intOr(c.DBSCANMinPts, 8) }
func (c *NavConfig) GetClusterMinInput() int    { return intOr(c.ClusterMinInput, 20) }

func (c *NavConfig) GetFOVDeg() float64         { return floatOr(c.FOVDeg, 120) }
func (c *NavConfig) GetDecisionCap() float64    { return floatOr(c.DecisionCap, 1.6) }
func (c *NavConfig) GetWallTolerance() float64  { return floatOr(c.WallTolerance, 0.10) }
func (c *NavConfig) GetLeftCutoffDeg() float64  { return floatOr(c.LeftCutoffDeg, -20) }
func (c *NavConfig) GetRightCutoffDeg() float64 { return floatOr(c.RightCutoffDeg, 20) }
func (c *NavConfig) GetBaselineBinDeg() float64 { return floatOr(c.BaselineBinDeg, 1.0) }

func (c *NavConfig) GetAvoidIn() float64     { return floatOr(c.AvoidIn, 0.50) }
func (c *NavConfig) GetAvoidOut() float64    { return floatOr(c.AvoidOut, 0.60) }
func (c *NavConfig) GetSlowIn() float64      { return floatOr(c.SlowIn, 0.90) }
func (c *NavConfig) GetSlowOut() float64     { return floatOr(c.SlowOut, 1.00) }
func (c *NavConfig) GetCruiseSpeed() float64 { return floatOr(c.CruiseSpeed, 40) }
func (c *NavConfig) GetAvoidSpeed() float64  { return floatOr(c.AvoidSpeed, 30) }
func (c *NavConfig) GetSteerMax() float64    { return floatOr(c.SteerMax, 25) }
func (c *NavConfig) GetSteerCenter() float64 { return floatOr(c.SteerCenter, 90) }
func (c *NavConfig) GetSteerAlpha() float64  { return floatOr(c.SteerAlpha, 0.3) }
