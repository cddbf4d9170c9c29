package handlers

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/engine"
)

func TestStatsHandlerEpochSummary(t *testing.T) {
	var buf bytes.Buffer
	e := constEngine(0.25)
	e.AddEventHandler(engine.EpochCompleted, func(e *engine.Engine) error {
		e.State.Metrics["Mean_Dice"] = 0.875
		return nil
	})
	NewStatsHandler(log.New(&buf, "", 0), 0).Attach(e)

	src := memSource{batches: []data.Batch{logitBatch(2)}}
	if err := e.Run(context.Background(), src, 2); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "trainer | Epoch 1/2 | Loss: 0.250000 | Time:") {
		t.Errorf("missing epoch 1 summary in:\n%s", out)
	}
	if !strings.Contains(out, "Epoch 2/2") {
		t.Errorf("missing epoch 2 summary in:\n%s", out)
	}
	if !strings.Contains(out, "Mean_Dice: 0.8750") {
		t.Errorf("metrics not appended in:\n%s", out)
	}
}

func TestStatsHandlerIterationInterval(t *testing.T) {
	var buf bytes.Buffer
	e := constEngine(0.5)
	NewStatsHandler(log.New(&buf, "", 0), 2).Attach(e)

	src := memSource{batches: []data.Batch{logitBatch(1), logitBatch(1), logitBatch(1), logitBatch(1)}}
	if err := e.Run(context.Background(), src, 1); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if n := strings.Count(out, "Iter "); n != 2 {
		t.Errorf("got %d iteration lines, want 2 (every second of four):\n%s", n, out)
	}
	if !strings.Contains(out, "Iter 2/4") || !strings.Contains(out, "Iter 4/4") {
		t.Errorf("wrong iteration lines:\n%s", out)
	}
}
