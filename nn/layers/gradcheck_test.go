package layers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// randInput fills a tensor from rng. With avoidZero set, values are kept
// away from activation kinks so central differences stay valid.
func randInput(rng *rand.Rand, avoidZero bool, shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		v := rng.NormFloat64()
		if avoidZero {
			for math.Abs(v) < 0.1 {
				v = rng.NormFloat64()
			}
		}
		t.Data[i] = v
	}
	return t
}

// checkLayerGrads verifies Backward against central differences of a
// scalar probe loss sum(forward(x) .* seed), for both the input gradient
// and every parameter gradient.
func checkLayerGrads(t *testing.T, layer nn.Layer, input *tensor.Tensor) {
	t.Helper()
	const h = 1e-6

	out, err := layer.Forward(input)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	seedRng := rand.New(rand.NewSource(99))
	seed := tensor.New(out.Shape...)
	for i := range seed.Data {
		seed.Data[i] = seedRng.NormFloat64()
	}

	loss := func() float64 {
		o, err := layer.Forward(input)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		l := 0.0
		for i := range o.Data {
			l += o.Data[i] * seed.Data[i]
		}
		return l
	}

	gradIn, err := layer.Backward(seed)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	gotIn := gradIn.Clone()
	var gotParams []*tensor.Tensor
	for _, p := range layer.Params() {
		gotParams = append(gotParams, p.Grad.Clone())
	}

	assertClose := func(what string, idx int, analytic, numeric float64) {
		t.Helper()
		if math.Abs(analytic-numeric) > 1e-5*(1+math.Max(math.Abs(analytic), math.Abs(numeric))) {
			t.Fatalf("%s grad mismatch at %d: analytic %g, numeric %g", what, idx, analytic, numeric)
		}
	}

	for i := range input.Data {
		orig := input.Data[i]
		input.Data[i] = orig + h
		lp := loss()
		input.Data[i] = orig - h
		lm := loss()
		input.Data[i] = orig
		assertClose("input", i, gotIn.Data[i], (lp-lm)/(2*h))
	}

	for pi, p := range layer.Params() {
		for i := range p.Value.Data {
			orig := p.Value.Data[i]
			p.Value.Data[i] = orig + h
			lp := loss()
			p.Value.Data[i] = orig - h
			lm := loss()
			p.Value.Data[i] = orig
			assertClose(p.Name, i, gotParams[pi].Data[i], (lp-lm)/(2*h))
		}
	}
}
