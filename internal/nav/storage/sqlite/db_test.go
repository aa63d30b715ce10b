package sqlite

import (
	"compress/gzip"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/l4perception"
	"github.com/banshee-data/ecoship/internal/nav/l5control"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func frame(seq uint64, prev, state l5control.State) *pipeline.Frame {
	return &pipeline.Frame{
		Seq:       seq,
		Timestamp: t0.Add(time.Duration(seq) * 100 * time.Millisecond),
		Valid:     300,
		Pose:      nav.Pose{X: 0.01 * float64(seq), Y: 0, Theta: 0},
		Sectors:   l4perception.HazardSectors{Left: math.Inf(1), Center: 0.8, Right: math.Inf(1)},
		PrevState: prev,
		State:     state,
		Command:   l5control.Command{Throttle: 40, Steering: 90},
	}
}

// =============================================================================
// Schema and queries
// =============================================================================

func TestOpenMigrates(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	run, err := db.StartRun("sim", t0, map[string]any{"tick": "100ms"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	latest, err := db.LatestRunID()
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest)

	require.NoError(t, db.EndRun(run.ID, t0.Add(time.Minute)))
	assert.Error(t, db.EndRun("missing", t0))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sim", runs[0].Source)
	assert.True(t, runs[0].Started.Equal(t0))
	assert.True(t, runs[0].Ended.Equal(t0.Add(time.Minute)))
	assert.JSONEq(t, `{"tick":"100ms"}`, runs[0].ParamsJSON)
}

func TestInsertTicksRoundTripsClearSectors(t *testing.T) {
	db := openTestDB(t)
	run, err := db.StartRun("sim", t0, nil)
	require.NoError(t, err)

	rec := TickRecordOf(frame(1, l5control.Cruise, l5control.Slow))
	require.NoError(t, db.InsertTicks(run.ID, []TickRecord{rec}, []Transition{{Seq: 1, Timestamp: t0, From: "CRUISE", To: "SLOW"}}))

	ticks, err := db.Ticks(run.ID)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	got := ticks[0]
	assert.True(t, math.IsInf(got.Left, 1))
	assert.Equal(t, 0.8, got.Center)
	assert.Equal(t, "SLOW", got.State)
	assert.Equal(t, 300, got.Valid)
	assert.True(t, got.Timestamp.Equal(rec.Timestamp))

	trs, err := db.Transitions(run.ID)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, "CRUISE", trs[0].From)
}

func TestInsertTicksDuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	run, err := db.StartRun("sim", t0, nil)
	require.NoError(t, err)

	rec := TickRecordOf(frame(1, l5control.Cruise, l5control.Cruise))
	require.Error(t, db.InsertTicks(run.ID, []TickRecord{rec, rec}, nil))

	ticks, err := db.Ticks(run.ID)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

// =============================================================================
// Recorder
// =============================================================================

func TestRecorderPersistsFrames(t *testing.T) {
	db := openTestDB(t)
	run, err := db.StartRun("sim", t0, nil)
	require.NoError(t, err)

	r := NewRecorder(db, run.ID, 0)
	r.RecordFrame(frame(1, l5control.Cruise, l5control.Cruise))
	r.RecordFrame(frame(2, l5control.Cruise, l5control.Slow))
	r.RecordFrame(frame(3, l5control.Slow, l5control.Avoid))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	// Ignored once closed.
	r.RecordFrame(frame(4, l5control.Avoid, l5control.Avoid))

	assert.Equal(t, RecorderStats{Written: 3}, r.Stats())

	pts, err := db.Trajectory(run.ID)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.InDelta(t, 0.03, pts[2].X, 1e-12)
	assert.Equal(t, "AVOID", pts[2].State)

	trs, err := db.Transitions(run.ID)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, uint64(3), trs[1].Seq)
	assert.True(t, trs[1].Timestamp.Equal(t0.Add(300*time.Millisecond)))
	assert.Equal(t, "SLOW", trs[1].From)
	assert.Equal(t, "AVOID", trs[1].To)

	runs, err := db.Runs()
	require.NoError(t, err)
	assert.False(t, runs[0].Ended.IsZero())
}

func TestRecorderDropsWhenFull(t *testing.T) {
	db := openTestDB(t)
	run, err := db.StartRun("sim", t0, nil)
	require.NoError(t, err)

	// Hold the only connection so the writer blocks on its first batch.
	tx, err := db.Begin()
	require.NoError(t, err)

	r := NewRecorder(db, run.ID, 1)
	for i := uint64(1); i <= 50; i++ {
		r.RecordFrame(frame(i, l5control.Cruise, l5control.Cruise))
	}
	require.NoError(t, tx.Rollback())
	require.NoError(t, r.Close())

	st := r.Stats()
	assert.Greater(t, st.Dropped, uint64(0))
	assert.Equal(t, uint64(50), st.Written+st.Dropped)
}

// =============================================================================
// Admin routes
// =============================================================================

func TestBackupRoute(t *testing.T) {
	db := openTestDB(t)
	_, err := db.StartRun("sim", t0, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(raw[:16]))
}
