package layers

import (
	"fmt"
	"math"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// BatchNorm3D normalizes each channel over the batch and spatial
// dimensions. Training mode uses batch statistics and maintains running
// estimates; eval mode normalizes with the running estimates only.
type BatchNorm3D struct {
	channels int
	eps      float64
	momentum float64
	training bool

	Gamma *tensor.Tensor // scale: [C]
	Beta  *tensor.Tensor // shift: [C]

	// Running statistics, persisted with checkpoints.
	RunMean *tensor.Tensor
	RunVar  *tensor.Tensor

	gradGamma *tensor.Tensor
	gradBeta  *tensor.Tensor

	lastXhat     *tensor.Tensor
	lastIstd     []float64
	lastTrainFwd bool
}

// NewBatchNorm3D creates a BatchNorm3D layer with scale 1, shift 0,
// running mean 0 and running variance 1.
func NewBatchNorm3D(channels int) *BatchNorm3D {
	bn := &BatchNorm3D{
		channels:  channels,
		eps:       1e-5,
		momentum:  0.1,
		training:  true,
		Gamma:     tensor.New(channels),
		Beta:      tensor.New(channels),
		RunMean:   tensor.New(channels),
		RunVar:    tensor.New(channels),
		gradGamma: tensor.New(channels),
		gradBeta:  tensor.New(channels),
	}
	bn.Gamma.Fill(1)
	bn.RunVar.Fill(1)
	return bn
}

func (bn *BatchNorm3D) checkInput(input *tensor.Tensor) (batch, vol int, err error) {
	if len(input.Shape) != 5 {
		return 0, 0, fmt.Errorf("BatchNorm3D input must be 5-D [B,C,D,H,W], got %v", input.Shape)
	}
	if input.Shape[1] != bn.channels {
		return 0, 0, fmt.Errorf("BatchNorm3D expects %d channels, got %d", bn.channels, input.Shape[1])
	}
	return input.Shape[0], input.Shape[2] * input.Shape[3] * input.Shape[4], nil
}

func (bn *BatchNorm3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	batch, vol, err := bn.checkInput(input)
	if err != nil {
		return nil, err
	}
	m := float64(batch * vol)
	output := tensor.New(input.Shape...)
	bn.lastXhat = tensor.New(input.Shape...)
	bn.lastIstd = make([]float64, bn.channels)
	bn.lastTrainFwd = bn.training

	for ch := 0; ch < bn.channels; ch++ {
		var mean, variance float64
		if bn.training {
			sum := 0.0
			for b := 0; b < batch; b++ {
				base := (b*bn.channels + ch) * vol
				for _, v := range input.Data[base : base+vol] {
					sum += v
				}
			}
			mean = sum / m
			ss := 0.0
			for b := 0; b < batch; b++ {
				base := (b*bn.channels + ch) * vol
				for _, v := range input.Data[base : base+vol] {
					d := v - mean
					ss += d * d
				}
			}
			variance = ss / m
			unbiased := variance
			if m > 1 {
				unbiased = ss / (m - 1)
			}
			bn.RunMean.Data[ch] = (1-bn.momentum)*bn.RunMean.Data[ch] + bn.momentum*mean
			bn.RunVar.Data[ch] = (1-bn.momentum)*bn.RunVar.Data[ch] + bn.momentum*unbiased
		} else {
			mean = bn.RunMean.Data[ch]
			variance = bn.RunVar.Data[ch]
		}

		istd := 1 / math.Sqrt(variance+bn.eps)
		bn.lastIstd[ch] = istd
		gamma, beta := bn.Gamma.Data[ch], bn.Beta.Data[ch]
		for b := 0; b < batch; b++ {
			base := (b*bn.channels + ch) * vol
			in := input.Data[base : base+vol]
			xh := bn.lastXhat.Data[base : base+vol]
			out := output.Data[base : base+vol]
			for i, v := range in {
				x := (v - mean) * istd
				xh[i] = x
				out[i] = gamma*x + beta
			}
		}
	}
	return output, nil
}

func (bn *BatchNorm3D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if bn.lastXhat == nil {
		return nil, fmt.Errorf("BatchNorm3D: no cached forward pass")
	}
	batch, vol, err := bn.checkInput(gradOut)
	if err != nil {
		return nil, err
	}
	if !tensor.SameShape(gradOut, bn.lastXhat) {
		return nil, fmt.Errorf("BatchNorm3D gradOut shape %v, want %v", gradOut.Shape, bn.lastXhat.Shape)
	}
	m := float64(batch * vol)
	bn.gradGamma.Zero()
	bn.gradBeta.Zero()
	inputGrad := tensor.New(gradOut.Shape...)

	for ch := 0; ch < bn.channels; ch++ {
		sumDy := 0.0
		sumDyXhat := 0.0
		for b := 0; b < batch; b++ {
			base := (b*bn.channels + ch) * vol
			dy := gradOut.Data[base : base+vol]
			xh := bn.lastXhat.Data[base : base+vol]
			for i := range dy {
				sumDy += dy[i]
				sumDyXhat += dy[i] * xh[i]
			}
		}
		bn.gradGamma.Data[ch] += sumDyXhat
		bn.gradBeta.Data[ch] += sumDy

		gamma := bn.Gamma.Data[ch]
		istd := bn.lastIstd[ch]
		if bn.lastTrainFwd {
			// Batch statistics depend on every element, so the
			// gradient carries the mean and projection terms.
			scale := gamma * istd / m
			for b := 0; b < batch; b++ {
				base := (b*bn.channels + ch) * vol
				dy := gradOut.Data[base : base+vol]
				xh := bn.lastXhat.Data[base : base+vol]
				dx := inputGrad.Data[base : base+vol]
				for i := range dy {
					dx[i] = scale * (m*dy[i] - sumDy - xh[i]*sumDyXhat)
				}
			}
		} else {
			// Running statistics are constants in eval mode.
			scale := gamma * istd
			for b := 0; b < batch; b++ {
				base := (b*bn.channels + ch) * vol
				dy := gradOut.Data[base : base+vol]
				dx := inputGrad.Data[base : base+vol]
				for i := range dy {
					dx[i] = scale * dy[i]
				}
			}
		}
	}
	return inputGrad, nil
}

func (bn *BatchNorm3D) Params() []nn.Param {
	return []nn.Param{
		{Name: "gamma", Value: bn.Gamma, Grad: bn.gradGamma},
		{Name: "beta", Value: bn.Beta, Grad: bn.gradBeta},
	}
}

func (bn *BatchNorm3D) Buffers() []nn.Param {
	return []nn.Param{
		{Name: "running_mean", Value: bn.RunMean},
		{Name: "running_var", Value: bn.RunVar},
	}
}

func (bn *BatchNorm3D) SetTraining(training bool) {
	bn.training = training
}
