package metrics

import (
	"math"
	"testing"

	"github.com/AmeerHamza111/MONAI/tensor"
)

func mask(vals ...float64) *tensor.Tensor {
	t := tensor.New(1, 1, len(vals))
	copy(t.Data, vals)
	return t
}

func TestMeanDiceKnownValues(t *testing.T) {
	cases := []struct {
		name string
		pred []float64
		targ []float64
		want float64
	}{
		{"perfect", []float64{1, 1, 0, 0}, []float64{1, 1, 0, 0}, 1},
		{"disjoint", []float64{1, 1, 0, 0}, []float64{0, 0, 1, 1}, 0},
		{"half overlap", []float64{1, 1, 0, 0}, []float64{1, 0, 1, 0}, 0.5},
		{"both empty", []float64{0, 0, 0, 0}, []float64{0, 0, 0, 0}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMeanDice()
			if err := m.Update(mask(tc.pred...), mask(tc.targ...)); err != nil {
				t.Fatal(err)
			}
			got, err := m.Compute()
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("dice = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestMeanDiceAveragesAcrossUpdates(t *testing.T) {
	m := NewMeanDice()
	if err := m.Update(mask(1, 1, 0, 0), mask(1, 1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(mask(1, 1, 0, 0), mask(0, 0, 1, 1)); err != nil {
		t.Fatal(err)
	}
	got, err := m.Compute()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.5 {
		t.Errorf("mean over a perfect and a disjoint item = %g, want 0.5", got)
	}
}

func TestMeanDiceReset(t *testing.T) {
	m := NewMeanDice()
	if err := m.Update(mask(1, 0), mask(1, 0)); err != nil {
		t.Fatal(err)
	}
	m.Reset()
	if _, err := m.Compute(); err == nil {
		t.Error("expected error computing over no batches")
	}
}

func TestMeanDiceRejectsMismatch(t *testing.T) {
	m := NewMeanDice()
	if err := m.Update(mask(1, 0), mask(1, 0, 1)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestAccuracy(t *testing.T) {
	a := NewAccuracy()
	if err := a.Update(mask(1, 1, 0, 0), mask(1, 0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	got, err := a.Compute()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.5 {
		t.Errorf("accuracy = %g, want 0.5", got)
	}
	a.Reset()
	if _, err := a.Compute(); err == nil {
		t.Error("expected error computing over no batches")
	}
}

func TestBinarizeLogits(t *testing.T) {
	logits := mask(-3, -0.1, 0, 0.1, 3)
	got := BinarizeLogits(logits, 0.5)
	want := []float64{0, 0, 1, 1, 1}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("at %d: got %g, want %g", i, got.Data[i], want[i])
		}
	}
}
