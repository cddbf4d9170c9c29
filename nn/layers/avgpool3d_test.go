package layers

import (
	"math/rand"
	"testing"

	"github.com/AmeerHamza111/MONAI/tensor"
)

func TestAvgPool3DForward(t *testing.T) {
	p := NewAvgPool3D(2)
	in := tensor.New(1, 1, 2, 2, 2)
	for i := range in.Data {
		in.Data[i] = float64(i + 1)
	}
	out, err := p.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	wantShape := []int{1, 1, 1, 1, 1}
	if !tensor.SameShape(out, &tensor.Tensor{Shape: wantShape}) {
		t.Fatalf("got shape %v, want %v", out.Shape, wantShape)
	}
	// Mean of 1..8.
	if out.Data[0] != 4.5 {
		t.Errorf("got %f, want 4.5", out.Data[0])
	}
}

func TestAvgPool3DFloorDims(t *testing.T) {
	p := NewAvgPool3D(2)
	in := tensor.New(1, 2, 5, 5, 5)
	out, err := p.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	wantShape := []int{1, 2, 2, 2, 2}
	for i, d := range wantShape {
		if out.Shape[i] != d {
			t.Fatalf("got shape %v, want %v", out.Shape, wantShape)
		}
	}
}

func TestAvgPool3DBackward(t *testing.T) {
	p := NewAvgPool3D(2)
	in := tensor.New(1, 1, 2, 2, 2)
	if _, err := p.Forward(in); err != nil {
		t.Fatal(err)
	}
	grad := tensor.New(1, 1, 1, 1, 1)
	grad.Data[0] = 8
	gradIn, err := p.Backward(grad)
	if err != nil {
		t.Fatal(err)
	}
	// Each of the 8 window voxels receives grad/8.
	for i, g := range gradIn.Data {
		if g != 1 {
			t.Errorf("gradIn[%d] = %f, want 1", i, g)
		}
	}
}

func TestAvgPool3DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	checkLayerGrads(t, NewAvgPool3D(2), randInput(rng, false, 2, 2, 4, 4, 4))
}

func TestAvgPool3DRejectsBadInput(t *testing.T) {
	p := NewAvgPool3D(2)
	if _, err := p.Forward(tensor.New(2, 2, 2)); err == nil {
		t.Error("expected error for non 5-D input")
	}
	if _, err := p.Forward(tensor.New(1, 1, 1, 2, 2)); err == nil {
		t.Error("expected error for depth smaller than pool size")
	}
}
