package telemetry

import (
	"net/http"
	"time"

	"github.com/banshee-data/ecoship/internal/httputil"
	"github.com/banshee-data/ecoship/internal/nav"
)

// MapResetter accepts a request to clear the occupancy map and trajectory.
// The reset is applied by the loop on its next tick.
type MapResetter interface {
	RequestMapReset()
}

// Server serves the JSON and chart endpoints.
type Server struct {
	pub   *Publisher
	reset MapResetter
}

// NewServer creates a server reading from pub. reset may be nil, in which
// case the reset endpoint answers 503.
func NewServer(pub *Publisher, reset MapResetter) *Server {
	return &Server{pub: pub, reset: reset}
}

// RegisterRoutes installs the endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/lidar/latest", s.handleLatestScan)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/map", s.handleMap)
	mux.HandleFunc("/api/map/reset", s.handleMapReset)
	mux.HandleFunc("/charts/map", s.handleMapChart)
	mux.HandleFunc("/charts/scan", s.handleScanChart)
}

// Handler returns a mux with every endpoint installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type healthResponse struct {
	OK              bool           `json:"ok"`
	Source          string         `json:"source"`
	Points          int            `json:"points"`
	Timestamp       float64        `json:"ts"`
	Seq             uint64         `json:"seq"`
	State           string         `json:"state"`
	WatchdogTripped bool           `json:"watchdog_tripped"`
	Uptime          string         `json:"uptime"`
	Publisher       PublisherStats `json:"publisher"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := healthResponse{
		Uptime:    s.pub.Uptime().Truncate(time.Second).String(),
		Publisher: s.pub.Stats(),
	}
	if f, ok := s.pub.Frame(); ok {
		resp.OK = !f.WatchdogTripped
		resp.Source = f.Sweep.Source
		resp.Points = f.Sweep.Len()
		resp.Timestamp = unixSeconds(f)
		resp.Seq = f.Seq
		resp.State = f.State.String()
		resp.WatchdogTripped = f.WatchdogTripped
	}
	httputil.WriteJSONOK(w, resp)
}

type latestScan struct {
	Timestamp float64   `json:"ts"`
	Angles    []float64 `json:"angles"`
	Ranges    []float64 `json:"ranges"`
}

// handleLatestScan serves the raw sweep in degrees. Before the first
// frame it serves an empty scan with ts 0.
func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	scan := latestScan{Angles: []float64{}, Ranges: []float64{}}
	if snap, ok := s.pub.Latest(); ok && !snap.Dropped {
		scan = latestScan{Timestamp: snap.Timestamp, Angles: snap.Angles, Ranges: snap.Ranges}
	}
	httputil.WriteJSONOK(w, scan)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap, ok := s.pub.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, "no frame yet")
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	m, ok := s.pub.LatestMap()
	if !ok {
		httputil.ServiceUnavailable(w, "no frame yet")
		return
	}
	httputil.WriteJSONOK(w, m)
}

func (s *Server) handleMapReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.reset == nil {
		httputil.ServiceUnavailable(w, "map reset not available")
		return
	}
	s.reset.RequestMapReset()
	nav.Opsf("map reset requested from %s", r.RemoteAddr)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}
