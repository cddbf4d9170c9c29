package handlers

import (
	"fmt"
	"time"

	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/utils"
)

// ValidationHandler runs an evaluator over the validation source every
// Interval epochs and copies the resulting metrics into the trainer's
// state, where checkpoint savers and stoppers attached later can see
// them. Attach it before any handler that reads the metrics.
type ValidationHandler struct {
	Interval  int
	Evaluator *engine.Engine
	Source    engine.BatchSource

	// Timing, when set, accumulates the wall time spent validating.
	Timing *utils.TimingStats
}

func NewValidationHandler(interval int, evaluator *engine.Engine, src engine.BatchSource) *ValidationHandler {
	if interval <= 0 {
		interval = 1
	}
	return &ValidationHandler{Interval: interval, Evaluator: evaluator, Source: src}
}

func (h *ValidationHandler) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.EpochCompleted, h.run)
}

func (h *ValidationHandler) run(e *engine.Engine) error {
	if e.State.Epoch%h.Interval != 0 {
		return nil
	}
	start := time.Now()
	if err := h.Evaluator.RunOnce(e.Context(), h.Source); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	if h.Timing != nil {
		h.Timing.ValidationTime += time.Since(start)
	}
	for name, v := range h.Evaluator.State.Metrics {
		e.State.Metrics[name] = v
	}
	return nil
}

// EarlyStopper terminates a trainer once the watched metric has gone
// Patience validation passes without improving by more than MinDelta.
// Attach it to the evaluator so it only counts epochs that actually
// validated.
type EarlyStopper struct {
	Metric   string
	Patience int
	MinDelta float64

	trainer *engine.Engine
	best    float64
	seen    bool
	misses  int
}

func NewEarlyStopper(trainer *engine.Engine, metric string, patience int) *EarlyStopper {
	return &EarlyStopper{Metric: metric, Patience: patience, trainer: trainer}
}

func (h *EarlyStopper) Attach(evaluator *engine.Engine) {
	evaluator.AddEventHandler(engine.EpochCompleted, h.check)
}

func (h *EarlyStopper) check(e *engine.Engine) error {
	v, ok := e.State.Metrics[h.Metric]
	if !ok {
		return fmt.Errorf("early stopping: metric %q not published", h.Metric)
	}
	if !h.seen || v > h.best+h.MinDelta {
		h.best, h.seen = v, true
		h.misses = 0
		return nil
	}
	h.misses++
	if h.misses >= h.Patience {
		h.trainer.Terminate()
	}
	return nil
}
