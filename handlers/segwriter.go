package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/metrics"
	"github.com/AmeerHamza111/MONAI/nifti"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// SegmentationSaver thresholds evaluator predictions and writes one
// binary mask per sample as <stem>_pred.nii.gz, where the stem comes
// from the sample's source image path.
type SegmentationSaver struct {
	Dir       string
	Paths     []string
	Threshold float64
}

func NewSegmentationSaver(dir string, paths []string) *SegmentationSaver {
	return &SegmentationSaver{Dir: dir, Paths: paths, Threshold: engine.EvalThreshold}
}

func (s *SegmentationSaver) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.IterationCompleted, s.save)
}

func (s *SegmentationSaver) save(e *engine.Engine) error {
	out := e.State.Output
	if out.Preds == nil {
		return fmt.Errorf("segmentation saver needs predictions in the engine output")
	}
	if len(out.Preds.Shape) != 5 || out.Preds.Shape[1] != 1 {
		return fmt.Errorf("expected single-channel 5-D predictions, got shape %v", out.Preds.Shape)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("prediction dir: %w", err)
	}
	pred := metrics.BinarizeLogits(out.Preds, s.Threshold)
	batch, vol := pred.Shape[0], pred.NumElements()/pred.Shape[0]
	for b := 0; b < batch; b++ {
		if b >= len(out.Batch.Indices) {
			return fmt.Errorf("batch has %d indices for %d predictions", len(out.Batch.Indices), batch)
		}
		idx := out.Batch.Indices[b]
		if idx < 0 || idx >= len(s.Paths) {
			return fmt.Errorf("sample index %d outside the %d known paths", idx, len(s.Paths))
		}
		vt := tensor.New(pred.Shape[2], pred.Shape[3], pred.Shape[4])
		copy(vt.Data, pred.Data[b*vol:(b+1)*vol])
		path := filepath.Join(s.Dir, predName(s.Paths[idx]))
		if err := nifti.WriteFile(path, vt, nifti.TypeUint8, "model prediction"); err != nil {
			return fmt.Errorf("write prediction %s: %w", path, err)
		}
	}
	return nil
}

func predName(src string) string {
	stem := filepath.Base(src)
	stem = strings.TrimSuffix(stem, ".gz")
	stem = strings.TrimSuffix(stem, ".nii")
	return stem + "_pred.nii.gz"
}
