package losses

import (
	"math"
	"math/rand"
	"testing"

	"github.com/AmeerHamza111/MONAI/tensor"
)

func TestDiceLossPerfectPrediction(t *testing.T) {
	d := NewDiceLoss()
	logits := tensor.New(1, 1, 2, 2, 2)
	target := tensor.New(1, 1, 2, 2, 2)
	for i := 0; i < 4; i++ {
		logits.Data[i] = 50
		target.Data[i] = 1
	}
	for i := 4; i < 8; i++ {
		logits.Data[i] = -50
	}
	loss, _, err := d.Forward(logits, target)
	if err != nil {
		t.Fatal(err)
	}
	if loss > 1e-3 {
		t.Errorf("perfect prediction loss = %g, want near 0", loss)
	}
}

func TestDiceLossDisjointPrediction(t *testing.T) {
	d := NewDiceLoss()
	logits := tensor.New(1, 1, 2, 2, 2)
	target := tensor.New(1, 1, 2, 2, 2)
	for i := 0; i < 4; i++ {
		logits.Data[i] = 50
		target.Data[4+i] = 1
	}
	for i := 4; i < 8; i++ {
		logits.Data[i] = -50
	}
	loss, _, err := d.Forward(logits, target)
	if err != nil {
		t.Fatal(err)
	}
	if loss < 0.99 {
		t.Errorf("disjoint prediction loss = %g, want near 1", loss)
	}
}

func TestDiceLossKnownValue(t *testing.T) {
	// p = [0.5, 0.5], g = [1, 0]: overlap 0.5, sums 1+1, loss 1 - 1/2.
	d := NewDiceLoss()
	logits := tensor.New(1, 1, 2)
	target := tensor.New(1, 1, 2)
	target.Data[0] = 1
	loss, _, err := d.Forward(logits, target)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(loss-0.5) > 1e-4 {
		t.Errorf("loss = %g, want 0.5", loss)
	}
}

func TestDiceLossBatchMean(t *testing.T) {
	d := NewDiceLoss()
	logits := tensor.New(2, 1, 4)
	target := tensor.New(2, 1, 4)
	// First item perfect, second fully wrong.
	for i := 0; i < 4; i++ {
		logits.Data[i] = 50
		target.Data[i] = 1
	}
	for i := 4; i < 8; i++ {
		logits.Data[i] = 50
	}
	loss, _, err := d.Forward(logits, target)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(loss-0.5) > 1e-3 {
		t.Errorf("batch mean loss = %g, want 0.5", loss)
	}
}

func TestDiceLossGradients(t *testing.T) {
	const h = 1e-6
	d := NewDiceLoss()
	rng := rand.New(rand.NewSource(1))
	logits := tensor.New(2, 1, 2, 2, 2)
	target := tensor.New(2, 1, 2, 2, 2)
	for i := range logits.Data {
		logits.Data[i] = rng.NormFloat64()
		if rng.Float64() < 0.4 {
			target.Data[i] = 1
		}
	}
	_, grad, err := d.Forward(logits, target)
	if err != nil {
		t.Fatal(err)
	}
	for i := range logits.Data {
		orig := logits.Data[i]
		logits.Data[i] = orig + h
		lp, _, err := d.Forward(logits, target)
		if err != nil {
			t.Fatal(err)
		}
		logits.Data[i] = orig - h
		lm, _, err := d.Forward(logits, target)
		if err != nil {
			t.Fatal(err)
		}
		logits.Data[i] = orig
		want := (lp - lm) / (2 * h)
		if math.Abs(grad.Data[i]-want) > 1e-7*(1+math.Abs(want)) {
			t.Fatalf("grad mismatch at %d: analytic %g, numeric %g", i, grad.Data[i], want)
		}
	}
}

func TestDiceLossRejectsMismatch(t *testing.T) {
	d := NewDiceLoss()
	if _, _, err := d.Forward(tensor.New(1, 1, 2), tensor.New(1, 1, 3)); err == nil {
		t.Error("expected shape mismatch error")
	}
	if _, _, err := d.Forward(tensor.New(2, 2), tensor.New(2, 2)); err == nil {
		t.Error("expected rank error")
	}
}
