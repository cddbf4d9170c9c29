package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// ConvTranspose3D is the gradient (fractionally strided) counterpart of
// Conv3D, used for learned upsampling. With kernel 3, stride 2, pad 1 and
// output padding 1 it exactly doubles each spatial dimension.
type ConvTranspose3D struct {
	inChan, outChan int
	kernel          int
	stride          int
	pad             int
	outPad          int

	W *tensor.Tensor // weights: [inChan, outChan, k, k, k]
	B *tensor.Tensor // bias: [outChan]

	lastInput *tensor.Tensor

	gradW *tensor.Tensor
	gradB *tensor.Tensor
}

// NewConvTranspose3D creates a ConvTranspose3D layer. Weights are drawn
// from normal(0, sqrt(2/(fanIn+fanOut))), biases start at zero.
func NewConvTranspose3D(rng *rand.Rand, inChan, outChan, kernel, stride, pad, outPad int) *ConvTranspose3D {
	c := &ConvTranspose3D{
		inChan:  inChan,
		outChan: outChan,
		kernel:  kernel,
		stride:  stride,
		pad:     pad,
		outPad:  outPad,
		W:       tensor.New(inChan, outChan, kernel, kernel, kernel),
		B:       tensor.New(outChan),
		gradW:   tensor.New(inChan, outChan, kernel, kernel, kernel),
		gradB:   tensor.New(outChan),
	}
	kv := kernel * kernel * kernel
	scale := math.Sqrt(2.0 / float64(inChan*kv+outChan*kv))
	for i := range c.W.Data {
		c.W.Data[i] = rng.NormFloat64() * scale
	}
	return c
}

// OutSize returns the output extent for one spatial dimension.
func (c *ConvTranspose3D) OutSize(in int) int {
	return (in-1)*c.stride - 2*c.pad + c.kernel + c.outPad
}

func (c *ConvTranspose3D) checkInput(input *tensor.Tensor) (b, d, h, w int, err error) {
	if len(input.Shape) != 5 {
		return 0, 0, 0, 0, fmt.Errorf("ConvTranspose3D input must be 5-D [B,C,D,H,W], got %v", input.Shape)
	}
	if input.Shape[1] != c.inChan {
		return 0, 0, 0, 0, fmt.Errorf("ConvTranspose3D expects %d input channels, got %d", c.inChan, input.Shape[1])
	}
	b, d, h, w = input.Shape[0], input.Shape[2], input.Shape[3], input.Shape[4]
	if c.OutSize(d) < 1 || c.OutSize(h) < 1 || c.OutSize(w) < 1 {
		return 0, 0, 0, 0, fmt.Errorf("ConvTranspose3D input %v too small for kernel %d stride %d pad %d",
			input.Shape, c.kernel, c.stride, c.pad)
	}
	return b, d, h, w, nil
}

// Forward scatters each input voxel through the kernel onto the
// upsampled grid.
func (c *ConvTranspose3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	batch, d, h, w, err := c.checkInput(input)
	if err != nil {
		return nil, err
	}
	od, oh, ow := c.OutSize(d), c.OutSize(h), c.OutSize(w)
	c.lastInput = input

	k, s, p := c.kernel, c.stride, c.pad
	kv := k * k * k
	inVol := d * h * w
	outVol := od * oh * ow
	output := tensor.New(batch, c.outChan, od, oh, ow)

	for b := 0; b < batch; b++ {
		inB := input.Data[b*c.inChan*inVol:]
		outB := output.Data[b*c.outChan*outVol:]
		for ic := 0; ic < c.inChan; ic++ {
			inC := inB[ic*inVol : (ic+1)*inVol]
			wIC := c.W.Data[ic*c.outChan*kv:]
			for zi := 0; zi < d; zi++ {
				for yi := 0; yi < h; yi++ {
					for xi := 0; xi < w; xi++ {
						v := inC[(zi*h+yi)*w+xi]
						z0, y0, x0 := zi*s-p, yi*s-p, xi*s-p
						for oc := 0; oc < c.outChan; oc++ {
							wOC := wIC[oc*kv:]
							outC := outB[oc*outVol:]
							for kd := 0; kd < k; kd++ {
								zo := z0 + kd
								if zo < 0 || zo >= od {
									continue
								}
								for kh := 0; kh < k; kh++ {
									yo := y0 + kh
									if yo < 0 || yo >= oh {
										continue
									}
									for kw := 0; kw < k; kw++ {
										xo := x0 + kw
										if xo < 0 || xo >= ow {
											continue
										}
										outC[(zo*oh+yo)*ow+xo] += v * wOC[(kd*k+kh)*k+kw]
									}
								}
							}
						}
					}
				}
			}
		}
		for oc := 0; oc < c.outChan; oc++ {
			row := outB[oc*outVol : (oc+1)*outVol]
			bias := c.B.Data[oc]
			for i := range row {
				row[i] += bias
			}
		}
	}
	return output, nil
}

// Backward gathers the output gradient back through the kernel, filling
// weight, bias and input gradients in one traversal.
func (c *ConvTranspose3D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("ConvTranspose3D: no cached input for backward pass")
	}
	batch, d, h, w, err := c.checkInput(c.lastInput)
	if err != nil {
		return nil, err
	}
	od, oh, ow := c.OutSize(d), c.OutSize(h), c.OutSize(w)
	want := []int{batch, c.outChan, od, oh, ow}
	if len(gradOut.Shape) != 5 {
		return nil, fmt.Errorf("ConvTranspose3D gradOut must be 5-D, got %v", gradOut.Shape)
	}
	for i := range want {
		if gradOut.Shape[i] != want[i] {
			return nil, fmt.Errorf("ConvTranspose3D gradOut shape %v, want %v", gradOut.Shape, want)
		}
	}

	c.gradW.Zero()
	c.gradB.Zero()
	inputGrad := tensor.New(c.lastInput.Shape...)

	k, s, p := c.kernel, c.stride, c.pad
	kv := k * k * k
	inVol := d * h * w
	outVol := od * oh * ow

	for b := 0; b < batch; b++ {
		gB := gradOut.Data[b*c.outChan*outVol:]
		for oc := 0; oc < c.outChan; oc++ {
			sum := 0.0
			for _, v := range gB[oc*outVol : (oc+1)*outVol] {
				sum += v
			}
			c.gradB.Data[oc] += sum
		}

		inB := c.lastInput.Data[b*c.inChan*inVol:]
		ig := inputGrad.Data[b*c.inChan*inVol:]
		for ic := 0; ic < c.inChan; ic++ {
			inC := inB[ic*inVol : (ic+1)*inVol]
			igC := ig[ic*inVol : (ic+1)*inVol]
			wIC := c.W.Data[ic*c.outChan*kv:]
			gwIC := c.gradW.Data[ic*c.outChan*kv:]
			for zi := 0; zi < d; zi++ {
				for yi := 0; yi < h; yi++ {
					for xi := 0; xi < w; xi++ {
						v := inC[(zi*h+yi)*w+xi]
						z0, y0, x0 := zi*s-p, yi*s-p, xi*s-p
						sum := 0.0
						for oc := 0; oc < c.outChan; oc++ {
							wOC := wIC[oc*kv:]
							gwOC := gwIC[oc*kv:]
							gC := gB[oc*outVol:]
							for kd := 0; kd < k; kd++ {
								zo := z0 + kd
								if zo < 0 || zo >= od {
									continue
								}
								for kh := 0; kh < k; kh++ {
									yo := y0 + kh
									if yo < 0 || yo >= oh {
										continue
									}
									for kw := 0; kw < k; kw++ {
										xo := x0 + kw
										if xo < 0 || xo >= ow {
											continue
										}
										gval := gC[(zo*oh+yo)*ow+xo]
										wIdx := (kd*k+kh)*k + kw
										sum += gval * wOC[wIdx]
										gwOC[wIdx] += v * gval
									}
								}
							}
						}
						igC[(zi*h+yi)*w+xi] = sum
					}
				}
			}
		}
	}
	return inputGrad, nil
}

func (c *ConvTranspose3D) Params() []nn.Param {
	return []nn.Param{
		{Name: "weight", Value: c.W, Grad: c.gradW},
		{Name: "bias", Value: c.B, Grad: c.gradB},
	}
}

func (c *ConvTranspose3D) SetTraining(training bool) {}
