package nn

import (
	"fmt"

	"github.com/AmeerHamza111/MONAI/tensor"
)

// Param is a named learnable tensor paired with its gradient accumulator.
// Params are value carriers: containers copy them to prefix names, while
// Value and Grad keep pointing at the layer's storage.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Layer defines a single layer/unit in the network.
type Layer interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the layer's output,
	// accumulates parameter gradients, and returns the gradient of the loss
	// with respect to the layer's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Params() []Param
	SetTraining(training bool)
}

// Stateful layers carry non-learnable tensors that must persist across
// checkpoints, such as batch-norm running statistics.
type Stateful interface {
	Buffers() []Param
}

// Sequential chains multiple Layers in order.
type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Params collects child parameters with index-prefixed names.
func (s *Sequential) Params() []Param {
	var out []Param
	for i, layer := range s.Layers {
		for _, p := range layer.Params() {
			p.Name = fmt.Sprintf("%d.%s", i, p.Name)
			out = append(out, p)
		}
	}
	return out
}

// Buffers collects child buffers with index-prefixed names.
func (s *Sequential) Buffers() []Param {
	var out []Param
	for i, layer := range s.Layers {
		st, ok := layer.(Stateful)
		if !ok {
			continue
		}
		for _, p := range st.Buffers() {
			p.Name = fmt.Sprintf("%d.%s", i, p.Name)
			out = append(out, p)
		}
	}
	return out
}

// SetTraining switches every layer between train and eval behavior.
func (s *Sequential) SetTraining(training bool) {
	for _, layer := range s.Layers {
		layer.SetTraining(training)
	}
}

// ZeroGrads clears the gradient accumulators of all params.
func ZeroGrads(params []Param) {
	for _, p := range params {
		if p.Grad != nil {
			p.Grad.Zero()
		}
	}
}

// StateTensors returns params followed by buffers (when the layer has
// any), the full set a checkpoint must capture.
func StateTensors(l Layer) []Param {
	out := append([]Param(nil), l.Params()...)
	if st, ok := l.(Stateful); ok {
		out = append(out, st.Buffers()...)
	}
	return out
}
