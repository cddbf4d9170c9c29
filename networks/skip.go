package networks

import (
	"fmt"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// SkipConnection runs its submodule and concatenates the result onto the
// input along the channel axis. The submodule must preserve batch and
// spatial dimensions.
type SkipConnection struct {
	submodule nn.Layer

	lastChans int
}

func NewSkipConnection(submodule nn.Layer) *SkipConnection {
	return &SkipConnection{submodule: submodule}
}

func (s *SkipConnection) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 5 {
		return nil, fmt.Errorf("SkipConnection input must be 5-D [B,C,D,H,W], got %v", x.Shape)
	}
	y, err := s.submodule.Forward(x)
	if err != nil {
		return nil, err
	}
	s.lastChans = x.Shape[1]
	return tensor.Concat(1, x, y)
}

func (s *SkipConnection) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if s.lastChans == 0 {
		return nil, fmt.Errorf("SkipConnection: no cached input for backward pass")
	}
	direct, branch, err := tensor.SplitAt(1, s.lastChans, gradOut)
	if err != nil {
		return nil, err
	}
	gradIn, err := s.submodule.Backward(branch)
	if err != nil {
		return nil, err
	}
	if err := tensor.AddInto(gradIn, direct); err != nil {
		return nil, err
	}
	return gradIn, nil
}

func (s *SkipConnection) Params() []nn.Param {
	return prefixParams("submodule", s.submodule.Params())
}

func (s *SkipConnection) Buffers() []nn.Param {
	if st, ok := s.submodule.(nn.Stateful); ok {
		return prefixParams("submodule", st.Buffers())
	}
	return nil
}

func (s *SkipConnection) SetTraining(training bool) {
	s.submodule.SetTraining(training)
}
