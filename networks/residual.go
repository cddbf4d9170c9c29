package networks

import (
	"math/rand"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/nn/layers"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// ResidualUnit stacks conv/norm/act subunits and adds a shortcut from the
// input. The shortcut is a projection convolution when the unit changes
// resolution or channel count, otherwise the input passes through as is.
type ResidualUnit struct {
	conv     *nn.Sequential
	shortcut nn.Layer
}

// NewResidualUnit builds a unit of the given number of subunits. The first
// subunit applies the stride and channel change, the rest keep both. With
// lastConvOnly the final subunit omits its norm and activation so the unit
// can emit raw logits.
func NewResidualUnit(rng *rand.Rand, inChan, outChan, stride, kernel, subunits int, lastConvOnly bool) *ResidualUnit {
	if subunits < 1 {
		subunits = 1
	}
	pad := (kernel - 1) / 2
	conv := nn.NewSequential()
	sc, ss := inChan, stride
	for su := 0; su < subunits; su++ {
		unit := nn.NewSequential(layers.NewConv3D(rng, sc, outChan, kernel, ss, pad))
		if !(lastConvOnly && su == subunits-1) {
			unit.Layers = append(unit.Layers, layers.NewBatchNorm3D(outChan), layers.NewPReLU(0.25))
		}
		conv.Layers = append(conv.Layers, unit)
		sc, ss = outChan, 1
	}
	var shortcut nn.Layer
	if stride != 1 || inChan != outChan {
		// A 1x1 kernel suffices when only the channel count changes.
		rk, rp := kernel, pad
		if stride == 1 {
			rk, rp = 1, 0
		}
		shortcut = layers.NewConv3D(rng, inChan, outChan, rk, stride, rp)
	}
	return &ResidualUnit{conv: conv, shortcut: shortcut}
}

func (r *ResidualUnit) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	cx, err := r.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	res := x
	if r.shortcut != nil {
		if res, err = r.shortcut.Forward(x); err != nil {
			return nil, err
		}
	}
	return tensor.Add(cx, res)
}

func (r *ResidualUnit) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	gradIn, err := r.conv.Backward(gradOut)
	if err != nil {
		return nil, err
	}
	skip := gradOut
	if r.shortcut != nil {
		if skip, err = r.shortcut.Backward(gradOut); err != nil {
			return nil, err
		}
	}
	if err := tensor.AddInto(gradIn, skip); err != nil {
		return nil, err
	}
	return gradIn, nil
}

func (r *ResidualUnit) Params() []nn.Param {
	out := prefixParams("conv", r.conv.Params())
	if r.shortcut != nil {
		out = append(out, prefixParams("residual", r.shortcut.Params())...)
	}
	return out
}

func (r *ResidualUnit) Buffers() []nn.Param {
	out := prefixParams("conv", r.conv.Buffers())
	if st, ok := r.shortcut.(nn.Stateful); ok {
		out = append(out, prefixParams("residual", st.Buffers())...)
	}
	return out
}

func (r *ResidualUnit) SetTraining(training bool) {
	r.conv.SetTraining(training)
	if r.shortcut != nil {
		r.shortcut.SetTraining(training)
	}
}
