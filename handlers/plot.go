package handlers

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AmeerHamza111/MONAI/engine"
)

// CurvePlotter renders training curves to an SVG when the run
// completes. The train recorder contributes its loss series; the val
// recorder contributes its loss and the named metric.
type CurvePlotter struct {
	Path   string
	Metric string
	Train  *ProgressRecorder
	Val    *ProgressRecorder
}

func NewCurvePlotter(path, metric string, train, val *ProgressRecorder) *CurvePlotter {
	return &CurvePlotter{Path: path, Metric: metric, Train: train, Val: val}
}

func (c *CurvePlotter) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.Completed, func(*engine.Engine) error {
		return c.Render()
	})
}

// Render writes the curves collected so far. Callable outside the
// handler too, for reports over a finished run.
func (c *CurvePlotter) Render() error {
	p := plot.New()
	p.Title.Text = "Training Progress"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss / Metric"
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true

	lines := 0
	add := func(name string, pts plotter.XYs, col color.RGBA) error {
		if len(pts) == 0 {
			return nil
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("line %s: %w", name, err)
		}
		line.Color = col
		p.Add(line)
		p.Legend.Add(name, line)
		lines++
		return nil
	}

	if c.Train != nil {
		if err := add("train loss", lossPoints(c.Train.Series()), color.RGBA{R: 0xd6, G: 0x2f, B: 0x2f, A: 0xff}); err != nil {
			return err
		}
	}
	if c.Val != nil {
		series := c.Val.Series()
		if err := add("val loss", lossPoints(series), color.RGBA{R: 0xf2, G: 0xa0, B: 0x3d, A: 0xff}); err != nil {
			return err
		}
		if c.Metric != "" {
			if err := add("val "+c.Metric, metricPoints(series, c.Metric), color.RGBA{R: 0x2f, G: 0x6f, B: 0xd6, A: 0xff}); err != nil {
				return err
			}
		}
	}
	if lines == 0 {
		return fmt.Errorf("no curves to plot")
	}
	if dir := filepath.Dir(c.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("plot dir: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, c.Path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

func lossPoints(series []EpochStat) plotter.XYs {
	pts := make(plotter.XYs, 0, len(series))
	for _, s := range series {
		pts = append(pts, plotter.XY{X: float64(s.Epoch), Y: s.Loss})
	}
	return pts
}

func metricPoints(series []EpochStat, metric string) plotter.XYs {
	pts := make(plotter.XYs, 0, len(series))
	for _, s := range series {
		if v, ok := s.Metrics[metric]; ok {
			pts = append(pts, plotter.XY{X: float64(s.Epoch), Y: v})
		}
	}
	return pts
}
