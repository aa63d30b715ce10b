package telemetry

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/ecoship/internal/httputil"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

// echartsAssetsHost serves the echarts javascript bundle.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// minChartWeight hides near-empty cells from the occupancy chart.
const minChartWeight = 0.05

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func writeHTML(w http.ResponseWriter, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func fmtSector(v float64) string {
	if math.IsInf(v, 1) {
		return "clear"
	}
	return fmt.Sprintf("%.2fm", v)
}

func occupancyData(f *pipeline.Frame) ([]opts.ScatterData, float64) {
	g := f.Grid
	data := make([]opts.ScatterData, 0, 256)
	maxW := 0.0
	if g.Size == 0 {
		return data, maxW
	}
	half := g.Side / 2
	for iy := 0; iy < g.Size; iy++ {
		for ix := 0; ix < g.Size; ix++ {
			w := g.Cells[iy*g.Size+ix]
			if w < minChartWeight {
				continue
			}
			x := -half + (float64(ix)+0.5)*g.Resolution
			y := -half + (float64(iy)+0.5)*g.Resolution
			data = append(data, opts.ScatterData{Value: []interface{}{x, y, w}})
			maxW = math.Max(maxW, w)
		}
	}
	return data, maxW
}

func (s *Server) handleMapChart(w http.ResponseWriter, r *http.Request) {
	f, ok := s.pub.Frame()
	if !ok {
		httputil.ServiceUnavailable(w, "no frame yet")
		return
	}
	pad := f.Grid.Side / 2
	if pad <= 0 {
		pad = 2
	}

	cells, maxW := occupancyData(f)
	if maxW == 0 {
		maxW = 1
	}
	occupancy := charts.NewScatter()
	occupancy.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Map", Subtitle: fmt.Sprintf("seq=%d cells=%d res=%gm", f.Seq, len(cells), f.Grid.Resolution)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxW),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	occupancy.AddSeries("occupancy", cells, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	track := make([]opts.ScatterData, 0, len(f.Trajectory))
	for _, p := range f.Trajectory {
		track = append(track, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}
	centroids := make([]opts.ScatterData, 0, len(f.Clusters))
	for _, c := range f.Clusters {
		centroids = append(centroids, opts.ScatterData{Value: []interface{}{c.Centroid.X, c.Centroid.Y, c.Size}})
	}
	overlay := charts.NewScatter()
	overlay.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory and Obstacles", Subtitle: fmt.Sprintf("pose=(%.2f, %.2f, %.1f°) clusters=%d", f.Pose.X, f.Pose.Y, f.Pose.Theta*180/math.Pi, len(f.Clusters))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	overlay.AddSeries("trajectory", track, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	overlay.AddSeries("obstacles", centroids, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(occupancy, overlay)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	writeHTML(w, &buf)
}

func (s *Server) handleScanChart(w http.ResponseWriter, r *http.Request) {
	f, ok := s.pub.Frame()
	if !ok {
		httputil.ServiceUnavailable(w, "no frame yet")
		return
	}

	pad := 0.0
	data := make([]opts.ScatterData, 0, f.Sweep.Len())
	for _, smp := range f.Sweep.Samples {
		if !(smp.Range > 0) || math.IsInf(smp.Range, 0) {
			continue
		}
		x := smp.Range * math.Cos(smp.Angle)
		y := smp.Range * math.Sin(smp.Angle)
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, smp.Range}})
		pad = math.Max(pad, smp.Range)
	}
	if pad == 0 {
		pad = 1
	}

	sec := f.Sectors
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Latest Scan", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Latest Scan (%s)", f.State),
			Subtitle: fmt.Sprintf("source=%s points=%d left=%s center=%s right=%s",
				f.Sweep.Source, len(data), fmtSector(sec.Left), fmtSector(sec.Center), fmtSector(sec.Right)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "ahead (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "starboard (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(pad),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("scan", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	writeHTML(w, &buf)
}
