package layers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/AmeerHamza111/MONAI/tensor"
)

func TestReLUForward(t *testing.T) {
	r := NewReLU()
	in := &tensor.Tensor{Data: []float64{-2, 0, 3}, Shape: []int{3}}
	out, err := r.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 3}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, out.Data[i], want[i])
		}
	}
}

func TestReLUGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	checkLayerGrads(t, NewReLU(), randInput(rng, true, 2, 3, 4))
}

func TestSigmoidForward(t *testing.T) {
	s := NewSigmoid()
	in := &tensor.Tensor{Data: []float64{0, 100, -100}, Shape: []int{3}}
	out, err := s.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Data[0]-0.5) > 1e-12 {
		t.Errorf("sigmoid(0) = %f, want 0.5", out.Data[0])
	}
	if out.Data[1] < 0.999999 || out.Data[2] > 1e-6 {
		t.Errorf("saturation wrong: %v", out.Data)
	}
}

func TestSigmoidGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	checkLayerGrads(t, NewSigmoid(), randInput(rng, false, 3, 5))
}

func TestPReLUForward(t *testing.T) {
	p := NewPReLU(0.25)
	in := &tensor.Tensor{Data: []float64{-4, 2}, Shape: []int{2}}
	out, err := p.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != -1 || out.Data[1] != 2 {
		t.Errorf("got %v, want [-1 2]", out.Data)
	}
}

func TestPReLUGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	checkLayerGrads(t, NewPReLU(0.25), randInput(rng, true, 2, 2, 3, 3, 3))
}
