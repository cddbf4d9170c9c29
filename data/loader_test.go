package data

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AmeerHamza111/MONAI/tensor"
	"github.com/AmeerHamza111/MONAI/transforms"
)

// stubDataset emits [1,2,2,2] volumes filled with the sample index. The
// first voxel is drawn from the rng so tests can observe which seed a
// worker used.
type stubDataset struct {
	n    int
	fail int
}

func (d *stubDataset) Len() int { return d.n }

func (d *stubDataset) At(rng *rand.Rand, i int) (transforms.Sample, error) {
	if i == d.fail {
		return transforms.Sample{}, fmt.Errorf("sample %d unreadable", i)
	}
	img := tensor.New(1, 2, 2, 2)
	img.Fill(float64(i))
	img.Data[0] = rng.Float64()
	mask := tensor.New(1, 2, 2, 2)
	mask.Fill(float64(i))
	return transforms.Sample{Image: img, Mask: mask}, nil
}

func newStub(n int) *stubDataset { return &stubDataset{n: n, fail: -1} }

func collectIndices(t *testing.T, l *Loader, epoch int) []int {
	t.Helper()
	var got []int
	err := l.Epoch(context.Background(), epoch, func(b Batch) error {
		got = append(got, b.Indices...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestLoaderBatchShapes(t *testing.T) {
	l, err := NewLoader(newStub(6), LoaderConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if l.Batches() != 3 {
		t.Errorf("Batches() = %d, want 3", l.Batches())
	}
	count := 0
	err = l.Epoch(context.Background(), 0, func(b Batch) error {
		count++
		want := []int{2, 1, 2, 2, 2}
		if diff := cmp.Diff(want, b.Images.Shape); diff != "" {
			return fmt.Errorf("image shape (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want, b.Masks.Shape); diff != "" {
			return fmt.Errorf("mask shape (-want +got):\n%s", diff)
		}
		if b.Size() != 2 {
			return fmt.Errorf("batch size %d", b.Size())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("saw %d batches, want 3", count)
	}
}

func TestLoaderOrderWithoutShuffle(t *testing.T) {
	l, err := NewLoader(newStub(5), LoaderConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, collectIndices(t, l, 0)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestLoaderDropLast(t *testing.T) {
	l, err := NewLoader(newStub(5), LoaderConfig{BatchSize: 2, DropLast: true})
	if err != nil {
		t.Fatal(err)
	}
	if l.Batches() != 2 {
		t.Errorf("Batches() = %d, want 2", l.Batches())
	}
	if got := collectIndices(t, l, 0); len(got) != 4 {
		t.Errorf("iterated %d samples, want 4 with the tail dropped", len(got))
	}
}

func TestLoaderShuffleIsSeededPerEpoch(t *testing.T) {
	mk := func() *Loader {
		l, err := NewLoader(newStub(16), LoaderConfig{BatchSize: 4, Shuffle: true, Seed: 11})
		if err != nil {
			t.Fatal(err)
		}
		return l
	}
	first := collectIndices(t, mk(), 0)
	if diff := cmp.Diff(first, collectIndices(t, mk(), 0)); diff != "" {
		t.Errorf("same epoch shuffled differently (-a +b):\n%s", diff)
	}
	if cmp.Equal(first, collectIndices(t, mk(), 1)) {
		t.Error("epochs 0 and 1 used the same order")
	}
}

func TestLoaderResultsIndependentOfWorkerCount(t *testing.T) {
	run := func(workers int) []float64 {
		l, err := NewLoader(newStub(8), LoaderConfig{BatchSize: 4, Shuffle: true, Seed: 3, Workers: workers})
		if err != nil {
			t.Fatal(err)
		}
		var vals []float64
		err = l.Epoch(context.Background(), 2, func(b Batch) error {
			vals = append(vals, b.Images.Data...)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return vals
	}
	if diff := cmp.Diff(run(1), run(4)); diff != "" {
		t.Errorf("worker count changed the data (-w1 +w4):\n%s", diff)
	}
}

func TestLoaderSampleErrorAbortsEpoch(t *testing.T) {
	ds := newStub(6)
	ds.fail = 3
	l, err := NewLoader(ds, LoaderConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Epoch(context.Background(), 0, func(b Batch) error { return nil })
	if err == nil {
		t.Fatal("expected sample error to surface")
	}
}

func TestLoaderFnErrorStopsIteration(t *testing.T) {
	l, err := NewLoader(newStub(6), LoaderConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	sentinel := errors.New("stop here")
	calls := 0
	err = l.Epoch(context.Background(), 0, func(b Batch) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("fn ran %d times after failing, want 1", calls)
	}
}

func TestLoaderHonorsCancellation(t *testing.T) {
	l, err := NewLoader(newStub(8), LoaderConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = l.Epoch(ctx, 0, func(b Batch) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn ran %d times after cancel, want 1", calls)
	}
}

func TestLoaderRejectsBadConfig(t *testing.T) {
	if _, err := NewLoader(newStub(4), LoaderConfig{BatchSize: 0}); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := NewLoader(&stubDataset{n: 0, fail: -1}, LoaderConfig{BatchSize: 1}); err == nil {
		t.Error("expected error for empty dataset")
	}
}
