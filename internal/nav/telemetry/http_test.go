package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resetCounter struct{ n int }

func (r *resetCounter) RequestMapReset() { r.n++ }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestServerBeforeFirstFrame(t *testing.T) {
	h := NewServer(NewPublisher(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)
	assert.Equal(t, false, health["ok"])
	assert.Equal(t, float64(0), health["points"])

	rec = do(t, h, http.MethodGet, "/lidar/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ts":0,"angles":[],"ranges":[]}`, rec.Body.String())

	for _, path := range []string{"/api/state", "/api/map", "/charts/map", "/charts/scan"} {
		rec = do(t, h, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec = do(t, h, http.MethodPost, "/api/map/reset")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerServesLatestFrame(t *testing.T) {
	pub := NewPublisher()
	pub.PublishFrame(testFrame(4))
	h := NewServer(pub, nil).Handler()

	rec := do(t, h, http.MethodGet, "/health")
	health := decode(t, rec)
	assert.Equal(t, true, health["ok"])
	assert.Equal(t, "sim", health["source"])
	assert.Equal(t, float64(4), health["points"])
	assert.Equal(t, "AVOID", health["state"])

	rec = do(t, h, http.MethodGet, "/lidar/latest")
	scan := decode(t, rec)
	assert.Len(t, scan["angles"], 2)
	assert.Equal(t, []any{1.5, 2.0}, scan["ranges"])

	rec = do(t, h, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	state := decode(t, rec)
	assert.Equal(t, float64(4), state["seq"])
	sectors := state["sectors"].(map[string]any)
	assert.Nil(t, sectors["left"])
	assert.Equal(t, 0.4, sectors["center"])

	rec = do(t, h, http.MethodGet, "/api/map")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	grid := m["grid"].(map[string]any)
	assert.Equal(t, float64(2), grid["size"])
	assert.Len(t, grid["cells"], 4)
}

func TestServerWatchdogTrippedIsNotOK(t *testing.T) {
	pub := NewPublisher()
	f := testFrame(1)
	f.WatchdogTripped = true
	pub.PublishFrame(f)

	health := decode(t, do(t, NewServer(pub, nil).Handler(), http.MethodGet, "/health"))
	assert.Equal(t, false, health["ok"])
	assert.Equal(t, true, health["watchdog_tripped"])
}

func TestServerMapReset(t *testing.T) {
	reset := &resetCounter{}
	h := NewServer(NewPublisher(), reset).Handler()

	rec := do(t, h, http.MethodPost, "/api/map/reset")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, reset.n)

	rec = do(t, h, http.MethodGet, "/api/map/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Equal(t, 1, reset.n)
}

func TestServerMethodNotAllowed(t *testing.T) {
	h := NewServer(NewPublisher(), nil).Handler()
	for _, path := range []string{"/health", "/lidar/latest", "/api/state", "/api/map"} {
		rec := do(t, h, http.MethodDelete, path)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestCharts(t *testing.T) {
	pub := NewPublisher()
	pub.PublishFrame(testFrame(1))
	h := NewServer(pub, nil).Handler()

	for _, path := range []string{"/charts/map", "/charts/scan"} {
		rec := do(t, h, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.True(t, strings.Contains(rec.Body.String(), "echarts"), path)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	pub := NewPublisher()
	pub.PublishFrame(testFrame(1))
	mux := http.NewServeMux()
	NewServer(pub, nil).AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/nav-stats", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.Equal(t, float64(1), stats["frames"])
}
