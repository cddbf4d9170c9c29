// seg-report: Render the artifacts of a finished run from the run
// database: an HTML progress chart, an SVG curve plot and a CSV dump of
// the per-epoch stats.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AmeerHamza111/MONAI/monitor"
	"github.com/AmeerHamza111/MONAI/rundb"
)

var (
	runDBPath = flag.String("run-db", "runs.db", "SQLite run database")
	runID     = flag.String("run", "", "Run ID (empty = most recent run)")
	outDir    = flag.String("out", "report", "Output directory")
)

func main() {
	flag.Parse()

	if _, err := os.Stat(*runDBPath); err != nil {
		fmt.Fprintf(os.Stderr, "Run database %s: %v\n", *runDBPath, err)
		os.Exit(1)
	}
	db, err := rundb.OpenBare(*runDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	run, err := resolveRun(db, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
	if run.BestMetric.Valid {
		fmt.Printf("Best %s: %.4f at epoch %d\n", rundb.MetricKey, run.BestMetric.Float64, run.BestEpoch.Int64)
	}

	stats, err := db.EpochStats(run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading epoch stats: %v\n", err)
		os.Exit(1)
	}
	if len(stats) == 0 {
		fmt.Fprintln(os.Stderr, "Run has no epoch stats to report")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}

	htmlPath := filepath.Join(*outDir, "progress.html")
	if err := writeHTML(db, run.ID, htmlPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing HTML chart: %v\n", err)
		os.Exit(1)
	}
	svgPath := filepath.Join(*outDir, "progress.svg")
	if err := writeSVG(stats, svgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing SVG plot: %v\n", err)
		os.Exit(1)
	}
	csvPath := filepath.Join(*outDir, "epochs.csv")
	if err := writeCSV(stats, csvPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}

	checkpoints, err := db.Checkpoints(run.ID)
	if err == nil && len(checkpoints) > 0 {
		fmt.Printf("Checkpoints recorded: %d (latest %s)\n",
			len(checkpoints), checkpoints[len(checkpoints)-1].Path)
	}
	if best, err := db.BestCheckpoint(run.ID); err == nil {
		fmt.Printf("Best checkpoint: %s (%s %.4f at epoch %d)\n",
			best.Path, rundb.MetricKey, best.Metric.Float64, best.Epoch)
	}
	fmt.Printf("Report written to %s, %s and %s\n", htmlPath, svgPath, csvPath)
}

func resolveRun(db *rundb.DB, id string) (*rundb.Run, error) {
	if id != "" {
		run, err := db.GetRun(id)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		return run, nil
	}
	runs, err := db.Runs()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run database holds no runs")
	}
	return &runs[0], nil
}

func writeHTML(db *rundb.DB, runID, path string) error {
	line, err := monitor.ProgressChart(db, runID)
	if err != nil {
		return err
	}
	if line == nil {
		return fmt.Errorf("no epoch stats for run %s", runID)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := line.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSVG(stats []rundb.EpochRow, path string) error {
	p := plot.New()
	p.Title.Text = "Training Progress"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss / Metric"
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true

	add := func(name string, pts plotter.XYs, c color.RGBA) error {
		if len(pts) == 0 {
			return nil
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = c
		p.Add(line)
		p.Legend.Add(name, line)
		return nil
	}

	var trainLoss, valLoss, valDice plotter.XYs
	for _, s := range stats {
		x := float64(s.Epoch)
		switch s.Phase {
		case "train":
			trainLoss = append(trainLoss, plotter.XY{X: x, Y: s.Loss})
		case "val":
			valLoss = append(valLoss, plotter.XY{X: x, Y: s.Loss})
			if s.MeanDice.Valid {
				valDice = append(valDice, plotter.XY{X: x, Y: s.MeanDice.Float64})
			}
		}
	}
	if err := add("train loss", trainLoss, color.RGBA{R: 0xd6, G: 0x2f, B: 0x2f, A: 0xff}); err != nil {
		return err
	}
	if err := add("val loss", valLoss, color.RGBA{R: 0xf2, G: 0xa0, B: 0x3d, A: 0xff}); err != nil {
		return err
	}
	if err := add("val mean dice", valDice, color.RGBA{R: 0x2f, G: 0x6f, B: 0xd6, A: 0xff}); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func writeCSV(stats []rundb.EpochRow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"phase", "epoch", "loss", "mean_dice", "duration_ms"}); err != nil {
		return err
	}
	for _, s := range stats {
		dice := ""
		if s.MeanDice.Valid {
			dice = strconv.FormatFloat(s.MeanDice.Float64, 'f', 6, 64)
		}
		rec := []string{
			s.Phase,
			strconv.Itoa(s.Epoch),
			strconv.FormatFloat(s.Loss, 'f', 6, 64),
			dice,
			strconv.FormatInt(s.DurationMS, 10),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
