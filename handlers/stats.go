// Package handlers provides attachable engine hooks: console stats,
// checkpointing, periodic validation, early stopping, progress
// recording, curve plotting and prediction export.
package handlers

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/AmeerHamza111/MONAI/engine"
)

// StatsHandler logs a line every LogEvery iterations and a summary at
// the end of each epoch. Metrics present in the engine state are
// appended to the summary in name order.
type StatsHandler struct {
	LogEvery int
	Logger   *log.Logger
}

// NewStatsHandler logs through the given logger, or log.Default when
// nil. logEvery 0 disables the per-iteration lines.
func NewStatsHandler(logger *log.Logger, logEvery int) *StatsHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &StatsHandler{LogEvery: logEvery, Logger: logger}
}

func (h *StatsHandler) Attach(e *engine.Engine) {
	e.AddEventHandler(engine.IterationCompleted, h.iteration)
	e.AddEventHandler(engine.EpochCompleted, h.epoch)
}

func (h *StatsHandler) iteration(e *engine.Engine) error {
	if h.LogEvery <= 0 {
		return nil
	}
	st := e.State
	iter := st.Iteration
	if st.EpochLength > 0 {
		iter = (st.Iteration-1)%st.EpochLength + 1
	}
	if iter%h.LogEvery != 0 {
		return nil
	}
	h.Logger.Printf("%s | Epoch %d Iter %d/%d | Loss: %.6f",
		e.Name, st.Epoch, iter, st.EpochLength, st.Output.Loss)
	return nil
}

func (h *StatsHandler) epoch(e *engine.Engine) error {
	st := e.State
	names := make([]string, 0, len(st.Metrics))
	for name := range st.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, " | %s: %.4f", name, st.Metrics[name])
	}
	h.Logger.Printf("%s | Epoch %d/%d | Loss: %.6f | Time: %.2fs%s",
		e.Name, st.Epoch, st.MaxEpochs, st.EpochLoss, st.EpochDuration.Seconds(), b.String())
	return nil
}
