package networks

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

func randVolume(rng *rand.Rand, shape ...int) *tensor.Tensor {
	v := tensor.New(shape...)
	for i := range v.Data {
		v.Data[i] = rng.NormFloat64()
	}
	return v
}

// linearizeActivations sets every PReLU slope to one. That makes each
// activation the identity, so finite differences are not disturbed by
// values crossing the rectifier kink.
func linearizeActivations(l nn.Layer) {
	for _, p := range l.Params() {
		if strings.HasSuffix(p.Name, "alpha") {
			p.Value.Data[0] = 1
		}
	}
}

// probeGrads compares Backward against central differences of the probe
// loss sum(forward(x) .* seed). Input gradients are checked everywhere,
// parameter gradients at every paramStride-th position.
func probeGrads(t *testing.T, l nn.Layer, in *tensor.Tensor, paramStride int) {
	t.Helper()
	const h = 1e-6

	out, err := l.Forward(in)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	seedRng := rand.New(rand.NewSource(7))
	seed := tensor.New(out.Shape...)
	for i := range seed.Data {
		seed.Data[i] = seedRng.NormFloat64()
	}
	probe := func(spot *float64) float64 {
		orig := *spot
		*spot = orig + h
		op, err := l.Forward(in)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		*spot = orig - h
		om, err := l.Forward(in)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		*spot = orig
		d := 0.0
		for i := range seed.Data {
			d += (op.Data[i] - om.Data[i]) * seed.Data[i]
		}
		return d / (2 * h)
	}

	gradIn, err := l.Backward(seed)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	analyticIn := gradIn.Clone()
	params := l.Params()
	analytic := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		analytic[p.Name] = p.Grad.Clone()
	}

	near := func(a, b float64) bool {
		return math.Abs(a-b) <= 1e-4*(1+math.Max(math.Abs(a), math.Abs(b)))
	}
	for i := range in.Data {
		want := probe(&in.Data[i])
		if !near(analyticIn.Data[i], want) {
			t.Fatalf("input grad mismatch at %d: analytic %g, numeric %g", i, analyticIn.Data[i], want)
		}
	}
	for _, p := range params {
		for i := 0; i < len(p.Value.Data); i += paramStride {
			want := probe(&p.Value.Data[i])
			if !near(analytic[p.Name].Data[i], want) {
				t.Fatalf("%s grad mismatch at %d: analytic %g, numeric %g", p.Name, i, analytic[p.Name].Data[i], want)
			}
		}
	}
}
