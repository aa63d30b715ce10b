package telemetry

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/ecoship/internal/httputil"
)

// AttachAdminRoutes adds navigation pages to the /debug/ index on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Nav state", func() any {
		f, ok := s.pub.Frame()
		if !ok {
			return "no frame yet"
		}
		return fmt.Sprintf("%s seq=%d pose=(%.2f, %.2f)", f.State, f.Seq, f.Pose.X, f.Pose.Y)
	})
	debug.KVFunc("Telemetry frames", func() any { return s.pub.Stats().Frames })
	debug.KVFunc("Telemetry dropped", func() any { return s.pub.Stats().Dropped })

	debug.HandleFunc("nav-state", "latest navigation snapshot (JSON)", s.handleState)
	debug.HandleFunc("nav-map", "occupancy map and trajectory chart", s.handleMapChart)
	debug.HandleFunc("nav-scan", "latest sweep chart", s.handleScanChart)
	debug.HandleSilentFunc("nav-stats", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.pub.Stats())
	})
}
