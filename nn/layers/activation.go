package layers

import (
	"fmt"
	"math"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// ReLU is the rectified linear activation.
type ReLU struct {
	lastInput *tensor.Tensor
}

func NewReLU() *ReLU { return &ReLU{} }

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	r.lastInput = input
	return tensor.ReluPlain(input), nil
}

func (r *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if r.lastInput == nil {
		return nil, fmt.Errorf("ReLU: no cached input for backward pass")
	}
	if !tensor.SameShape(gradOut, r.lastInput) {
		return nil, fmt.Errorf("ReLU gradOut shape %v, want %v", gradOut.Shape, r.lastInput.Shape)
	}
	out := tensor.New(gradOut.Shape...)
	for i, v := range r.lastInput.Data {
		if v > 0 {
			out.Data[i] = gradOut.Data[i]
		}
	}
	return out, nil
}

func (r *ReLU) Params() []nn.Param        { return nil }
func (r *ReLU) SetTraining(training bool) {}

// Sigmoid is the logistic activation.
type Sigmoid struct {
	lastOutput *tensor.Tensor
}

func NewSigmoid() *Sigmoid { return &Sigmoid{} }

func (s *Sigmoid) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(input.Shape...)
	for i, v := range input.Data {
		out.Data[i] = 1 / (1 + math.Exp(-v))
	}
	s.lastOutput = out
	return out, nil
}

func (s *Sigmoid) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if s.lastOutput == nil {
		return nil, fmt.Errorf("Sigmoid: no cached output for backward pass")
	}
	if !tensor.SameShape(gradOut, s.lastOutput) {
		return nil, fmt.Errorf("Sigmoid gradOut shape %v, want %v", gradOut.Shape, s.lastOutput.Shape)
	}
	out := tensor.New(gradOut.Shape...)
	for i, y := range s.lastOutput.Data {
		out.Data[i] = gradOut.Data[i] * y * (1 - y)
	}
	return out, nil
}

func (s *Sigmoid) Params() []nn.Param        { return nil }
func (s *Sigmoid) SetTraining(training bool) {}

// PReLU is a rectifier with one learnable negative slope shared across
// all channels.
type PReLU struct {
	Alpha *tensor.Tensor // [1]

	gradAlpha *tensor.Tensor
	lastInput *tensor.Tensor
}

// NewPReLU creates a PReLU layer with the given initial negative slope.
func NewPReLU(init float64) *PReLU {
	p := &PReLU{
		Alpha:     tensor.New(1),
		gradAlpha: tensor.New(1),
	}
	p.Alpha.Data[0] = init
	return p
}

func (p *PReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	p.lastInput = input
	a := p.Alpha.Data[0]
	out := tensor.New(input.Shape...)
	for i, v := range input.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = a * v
		}
	}
	return out, nil
}

func (p *PReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if p.lastInput == nil {
		return nil, fmt.Errorf("PReLU: no cached input for backward pass")
	}
	if !tensor.SameShape(gradOut, p.lastInput) {
		return nil, fmt.Errorf("PReLU gradOut shape %v, want %v", gradOut.Shape, p.lastInput.Shape)
	}
	p.gradAlpha.Zero()
	a := p.Alpha.Data[0]
	out := tensor.New(gradOut.Shape...)
	da := 0.0
	for i, v := range p.lastInput.Data {
		if v > 0 {
			out.Data[i] = gradOut.Data[i]
		} else {
			out.Data[i] = gradOut.Data[i] * a
			da += gradOut.Data[i] * v
		}
	}
	p.gradAlpha.Data[0] += da
	return out, nil
}

func (p *PReLU) Params() []nn.Param {
	return []nn.Param{{Name: "alpha", Value: p.Alpha, Grad: p.gradAlpha}}
}

func (p *PReLU) SetTraining(training bool) {}
