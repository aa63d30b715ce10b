// Command plot-trajectory renders a recorded run's trajectory to PNG,
// colouring each pose by the navigation state at that tick.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/ecoship/internal/nav/storage/sqlite"
	"github.com/banshee-data/ecoship/internal/security"
)

var (
	dbPath = flag.String("db", "navcore.db", "Run log SQLite path")
	runID  = flag.String("run", "", "Run ID to plot (latest run when empty)")
	out    = flag.String("out", "", "Output PNG path (trajectory-<run>.png when empty)")
	list   = flag.Bool("list", false, "List recorded runs and exit")
)

var stateColors = map[string]color.RGBA{
	"CRUISE": {R: 0x35, G: 0xb7, B: 0x79, A: 0xff},
	"SLOW":   {R: 0xf5, G: 0xa6, B: 0x23, A: 0xff},
	"AVOID":  {R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

var stateOrder = []string{"CRUISE", "SLOW", "AVOID"}

func main() {
	flag.Parse()

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run log: %v", err)
	}
	defer db.Close()

	if *list {
		runs, err := db.Runs()
		if err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  source=%s\n", r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Source)
		}
		return
	}

	id := *runID
	if id == "" {
		id, err = db.LatestRunID()
		if err != nil {
			log.Fatalf("no run to plot: %v", err)
		}
	}
	path := *out
	if path == "" {
		path = "trajectory-" + security.SanitizeFilename(id) + ".png"
	}
	if err := security.ValidateExportPath(path); err != nil {
		log.Fatalf("refusing to write %s: %v", path, err)
	}
	n, err := plotRun(db, id, path)
	if err != nil {
		log.Fatalf("failed to plot run %s: %v", id, err)
	}
	log.Printf("wrote %d poses of run %s to %s", n, id, path)
}

// plotRun writes the trajectory of runID to path and returns the number of
// poses drawn.
func plotRun(db *sqlite.DB, runID, path string) (int, error) {
	pts, err := db.Trajectory(runID)
	if err != nil {
		return 0, err
	}
	if len(pts) == 0 {
		return 0, errors.New("run has no ticks")
	}
	transitions, err := db.Transitions(runID)
	if err != nil {
		return 0, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s", runID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	path2d := make(plotter.XYs, len(pts))
	byState := make(map[string]plotter.XYs)
	for i, pt := range pts {
		path2d[i] = plotter.XY{X: pt.X, Y: pt.Y}
		byState[pt.State] = append(byState[pt.State], plotter.XY{X: pt.X, Y: pt.Y})
	}

	line, err := plotter.NewLine(path2d)
	if err != nil {
		return 0, err
	}
	line.Width = vg.Points(1)
	line.Color = color.Gray{Y: 0x80}
	p.Add(line)

	for _, state := range stateOrder {
		xy := byState[state]
		if len(xy) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(xy)
		if err != nil {
			return 0, err
		}
		sc.GlyphStyle.Color = stateColors[state]
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(state, sc)
	}

	if len(transitions) > 0 {
		poseAt := make(map[uint64]plotter.XY, len(pts))
		for _, pt := range pts {
			poseAt[pt.Seq] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		marks := make(plotter.XYs, 0, len(transitions))
		for _, tr := range transitions {
			if xy, ok := poseAt[tr.Seq]; ok {
				marks = append(marks, xy)
			}
		}
		if len(marks) > 0 {
			sc, err := plotter.NewScatter(marks)
			if err != nil {
				return 0, err
			}
			sc.GlyphStyle.Shape = draw.CrossGlyph{}
			sc.GlyphStyle.Radius = vg.Points(4)
			sc.GlyphStyle.Color = color.Black
			p.Add(sc)
			p.Legend.Add("transition", sc)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return len(pts), nil
}
