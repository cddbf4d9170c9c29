package handlers

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AmeerHamza111/MONAI/data"
)

type memSink struct {
	stats []EpochStat
}

func (s *memSink) RecordEpoch(stat EpochStat) error {
	s.stats = append(s.stats, stat)
	return nil
}

func TestProgressRecorderSeriesAndSink(t *testing.T) {
	sink := &memSink{}
	rec := NewProgressRecorder("train", sink)
	e := constEngine(0.4)
	rec.Attach(e)

	src := memSource{batches: []data.Batch{logitBatch(2)}}
	if err := e.Run(context.Background(), src, 3); err != nil {
		t.Fatal(err)
	}

	series := rec.Series()
	if len(series) != 3 {
		t.Fatalf("recorded %d epochs, want 3", len(series))
	}
	for i, s := range series {
		if s.Phase != "train" || s.Epoch != i+1 || s.Loss != 0.4 {
			t.Errorf("row %d = %+v, want phase train epoch %d loss 0.4", i, s, i+1)
		}
	}
	if diff := cmp.Diff(series, sink.stats); diff != "" {
		t.Errorf("sink rows differ from series:\n%s", diff)
	}
}

func TestProgressRecorderEpochSource(t *testing.T) {
	trainer := constEngine(0.4)
	trainer.State.Epoch = 6

	val := constEngine(0.2)
	rec := NewProgressRecorder("val", nil)
	rec.EpochSource = trainer
	rec.Attach(val)

	if err := val.RunOnce(context.Background(), memSource{batches: []data.Batch{logitBatch(1)}}); err != nil {
		t.Fatal(err)
	}
	series := rec.Series()
	if len(series) != 1 || series[0].Epoch != 6 {
		t.Fatalf("val row = %+v, want epoch 6 from the trainer", series)
	}
}
