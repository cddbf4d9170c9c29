package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/AmeerHamza111/MONAI/nifti"
	"github.com/AmeerHamza111/MONAI/rundb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleProgressChart renders a run's loss and dice curves as an
// echarts line chart.
// Query params:
//
//	run (required)
func (ws *WebServer) handleProgressChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no run database configured")
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run' parameter")
		return
	}
	line, err := ProgressChart(ws.db, runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("epoch stats: %v", err))
		return
	}
	if line == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no epoch stats for run")
		return
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// ProgressChart builds the loss/dice line chart for a run. It returns
// nil without error when the run has no epoch stats yet.
func ProgressChart(db *rundb.DB, runID string) (*charts.Line, error) {
	stats, err := db.EpochStats(runID)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}

	maxEpoch := 0
	for _, s := range stats {
		if s.Epoch > maxEpoch {
			maxEpoch = s.Epoch
		}
	}
	epochs := make([]string, maxEpoch)
	trainLoss := make([]opts.LineData, maxEpoch)
	valLoss := make([]opts.LineData, maxEpoch)
	valDice := make([]opts.LineData, maxEpoch)
	for i := 0; i < maxEpoch; i++ {
		epochs[i] = strconv.Itoa(i + 1)
	}
	for _, s := range stats {
		i := s.Epoch - 1
		switch s.Phase {
		case "train":
			trainLoss[i] = opts.LineData{Value: s.Loss}
		case "val":
			valLoss[i] = opts.LineData{Value: s.Loss}
			if s.MeanDice.Valid {
				valDice[i] = opts.LineData{Value: s.MeanDice.Float64}
			}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Progress", Width: "900px", Height: "540px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Training Progress", Subtitle: fmt.Sprintf("run=%s epochs=%d", runID, maxEpoch)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "loss / dice"}),
	)
	line.SetXAxis(epochs).
		AddSeries("train loss", trainLoss).
		AddSeries("val loss", valLoss).
		AddSeries("val mean dice", valDice)
	return line, nil
}

// handleSliceChart renders one axial slice of a volume under the data
// root as a colored scatter.
// Query params:
//
//	file (required, relative to the data root)
//	z (optional, defaults to the middle slice)
//	max_points (optional, default 8000)
func (ws *WebServer) handleSliceChart(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("file")
	if rel == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'file' parameter")
		return
	}
	path, err := ws.resolveDataPath(rel)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	vol, err := nifti.ReadFile(path)
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("read volume: %v", err))
		return
	}
	if len(vol.Shape) != 3 {
		ws.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("expected a 3-D volume, got shape %v", vol.Shape))
		return
	}
	depth, height, width := vol.Shape[0], vol.Shape[1], vol.Shape[2]

	z := depth / 2
	if s := r.URL.Query().Get("z"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 && v < depth {
			z = v
		}
	}
	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	total := height * width
	stride := 1
	if total > maxPoints {
		stride = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, total/stride+1)
	maxVal := 0.0
	base := z * total
	for i := 0; i < total; i += stride {
		v := vol.Data[base+i]
		if v > maxVal {
			maxVal = v
		}
		// Flip rows so the image reads top-down.
		data = append(data, opts.ScatterData{Value: []interface{}{i % width, height - 1 - i/width, v}})
	}
	if maxVal == 0 {
		maxVal = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Volume Slice", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Volume Slice", Subtitle: fmt.Sprintf("file=%s z=%d stride=%d", rel, z, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: height}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("slice", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// resolveDataPath joins rel onto the data root and rejects anything
// that escapes it.
func (ws *WebServer) resolveDataPath(rel string) (string, error) {
	if ws.dataRoot == "" {
		return "", fmt.Errorf("no data root configured")
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the data root")
	}
	return filepath.Join(ws.dataRoot, clean), nil
}
