// Package sqlite stores navigation runs in a SQLite database: one row per
// run, one per tick and one per state transition.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB is the run log database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	// One writer; keeps :memory: databases on a single connection too.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one execution of the navigation loop.
type Run struct {
	ID         string
	Started    time.Time
	Ended      time.Time // zero while running
	Source     string
	ParamsJSON string
}

// TickRecord is the persisted summary of one tick.
type TickRecord struct {
	Seq             uint64
	Timestamp       time.Time
	Dropped         bool
	Learning        bool
	Valid           int
	X, Y, Theta     float64
	ICPIterations   int
	ICPRMSE         float64
	ICPFallback     bool
	Clusters        int
	Left            float64 // +Inf when clear
	Center          float64
	Right           float64
	State           string
	Throttle        float64
	Steering        float64
	WatchdogTripped bool
}

// Transition is a state machine change.
type Transition struct {
	Seq       uint64
	Timestamp time.Time
	From      string
	To        string
}

// TrajectoryPoint is a recorded pose.
type TrajectoryPoint struct {
	Seq   uint64
	X, Y  float64
	Theta float64
	State string
}

// StartRun creates a run with a fresh identifier. params is stored as JSON
// for later inspection.
func (db *DB) StartRun(source string, started time.Time, params any) (Run, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Run{}, fmt.Errorf("encode run params: %w", err)
	}
	run := Run{
		ID:         uuid.NewString(),
		Started:    started,
		Source:     source,
		ParamsJSON: string(raw),
	}
	_, err = db.Exec(`INSERT INTO runs (run_id, started_ns, source, params_json) VALUES (?, ?, ?, ?)`,
		run.ID, started.UnixNano(), source, run.ParamsJSON)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// EndRun marks a run finished.
func (db *DB) EndRun(runID string, ended time.Time) error {
	res, err := db.Exec(`UPDATE runs SET ended_ns = ? WHERE run_id = ?`, ended.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("end run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

func nullableRange(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func rangeOrInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}

// InsertTicks writes ticks and transitions in one transaction.
func (db *DB) InsertTicks(runID string, ticks []TickRecord, transitions []Transition) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tick batch: %w", err)
	}
	defer tx.Rollback()

	tickStmt, err := tx.Prepare(`INSERT INTO ticks (
		run_id, seq, ts_ns, dropped, learning, valid,
		pose_x, pose_y, pose_theta, icp_iterations, icp_rmse, icp_fallback,
		clusters, sector_left, sector_center, sector_right,
		state, throttle, steering, watchdog_tripped
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tick insert: %w", err)
	}
	defer tickStmt.Close()

	for _, t := range ticks {
		_, err := tickStmt.Exec(
			runID, int64(t.Seq), t.Timestamp.UnixNano(), t.Dropped, t.Learning, t.Valid,
			t.X, t.Y, t.Theta, t.ICPIterations, t.ICPRMSE, t.ICPFallback,
			t.Clusters, nullableRange(t.Left), nullableRange(t.Center), nullableRange(t.Right),
			t.State, t.Throttle, t.Steering, t.WatchdogTripped,
		)
		if err != nil {
			return fmt.Errorf("insert tick %d: %w", t.Seq, err)
		}
	}

	for _, tr := range transitions {
		_, err := tx.Exec(`INSERT INTO transitions (run_id, seq, ts_ns, from_state, to_state) VALUES (?, ?, ?, ?, ?)`,
			runID, int64(tr.Seq), tr.Timestamp.UnixNano(), tr.From, tr.To)
		if err != nil {
			return fmt.Errorf("insert transition %d: %w", tr.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick batch: %w", err)
	}
	return nil
}

// Runs lists runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, started_ns, ended_ns, source, params_json FROM runs ORDER BY started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &ended, &r.Source, &r.ParamsJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(0, started).UTC()
		if ended.Valid {
			r.Ended = time.Unix(0, ended.Int64).UTC()
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRunID returns the most recently started run.
func (db *DB) LatestRunID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM runs ORDER BY started_ns DESC LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// Ticks returns a run's ticks in order.
func (db *DB) Ticks(runID string) ([]TickRecord, error) {
	rows, err := db.Query(`SELECT
		seq, ts_ns, dropped, learning, valid,
		pose_x, pose_y, pose_theta, icp_iterations, icp_rmse, icp_fallback,
		clusters, sector_left, sector_center, sector_right,
		state, throttle, steering, watchdog_tripped
		FROM ticks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []TickRecord
	for rows.Next() {
		var (
			t                   TickRecord
			seq, ts             int64
			left, center, right sql.NullFloat64
		)
		err := rows.Scan(&seq, &ts, &t.Dropped, &t.Learning, &t.Valid,
			&t.X, &t.Y, &t.Theta, &t.ICPIterations, &t.ICPRMSE, &t.ICPFallback,
			&t.Clusters, &left, &center, &right,
			&t.State, &t.Throttle, &t.Steering, &t.WatchdogTripped)
		if err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Seq = uint64(seq)
		t.Timestamp = time.Unix(0, ts).UTC()
		t.Left, t.Center, t.Right = rangeOrInf(left), rangeOrInf(center), rangeOrInf(right)
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// Trajectory returns a run's poses in tick order.
func (db *DB) Trajectory(runID string) ([]TrajectoryPoint, error) {
	rows, err := db.Query(`SELECT seq, pose_x, pose_y, pose_theta, state FROM ticks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trajectory: %w", err)
	}
	defer rows.Close()

	var pts []TrajectoryPoint
	for rows.Next() {
		var (
			p   TrajectoryPoint
			seq int64
		)
		if err := rows.Scan(&seq, &p.X, &p.Y, &p.Theta, &p.State); err != nil {
			return nil, fmt.Errorf("scan pose: %w", err)
		}
		p.Seq = uint64(seq)
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// Transitions returns a run's state changes in order.
func (db *DB) Transitions(runID string) ([]Transition, error) {
	rows, err := db.Query(`SELECT seq, ts_ns, from_state, to_state FROM transitions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr      Transition
			seq, ts int64
		)
		if err := rows.Scan(&seq, &ts, &tr.From, &tr.To); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Seq = uint64(seq)
		tr.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, tr)
	}
	return out, rows.Err()
}
