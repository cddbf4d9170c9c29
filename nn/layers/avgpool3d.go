package layers

import (
	"fmt"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// AvgPool3D averages non-overlapping cubic windows of edge poolSize.
// Trailing voxels that do not fill a window are dropped.
type AvgPool3D struct {
	poolSize int

	lastShape []int
}

func NewAvgPool3D(p int) *AvgPool3D {
	return &AvgPool3D{poolSize: p}
}

func (a *AvgPool3D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 5 {
		return nil, fmt.Errorf("AvgPool3D input must be 5-D [B,C,D,H,W], got %v", x.Shape)
	}
	batch, ch, d, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3], x.Shape[4]
	p := a.poolSize
	od, oh, ow := d/p, h/p, w/p
	if od < 1 || oh < 1 || ow < 1 {
		return nil, fmt.Errorf("AvgPool3D input %v smaller than pool size %d", x.Shape, p)
	}
	a.lastShape = append([]int(nil), x.Shape...)

	inv := 1.0 / float64(p*p*p)
	out := tensor.New(batch, ch, od, oh, ow)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			inBase := (b*ch + c) * d * h * w
			outBase := (b*ch + c) * od * oh * ow
			for z := 0; z < od; z++ {
				for y := 0; y < oh; y++ {
					for x2 := 0; x2 < ow; x2++ {
						sum := 0.0
						for pz := 0; pz < p; pz++ {
							for py := 0; py < p; py++ {
								row := inBase + ((z*p+pz)*h+y*p+py)*w + x2*p
								for px := 0; px < p; px++ {
									sum += x.Data[row+px]
								}
							}
						}
						out.Data[outBase+(z*oh+y)*ow+x2] = sum * inv
					}
				}
			}
		}
	}
	return out, nil
}

func (a *AvgPool3D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if a.lastShape == nil {
		return nil, fmt.Errorf("AvgPool3D: no cached input for backward pass")
	}
	batch, ch, d, h, w := a.lastShape[0], a.lastShape[1], a.lastShape[2], a.lastShape[3], a.lastShape[4]
	p := a.poolSize
	od, oh, ow := d/p, h/p, w/p
	want := []int{batch, ch, od, oh, ow}
	if len(gradOut.Shape) != 5 {
		return nil, fmt.Errorf("AvgPool3D gradOut must be 5-D, got %v", gradOut.Shape)
	}
	for i := range want {
		if gradOut.Shape[i] != want[i] {
			return nil, fmt.Errorf("AvgPool3D gradOut shape %v, want %v", gradOut.Shape, want)
		}
	}

	inv := 1.0 / float64(p*p*p)
	inputGrad := tensor.New(a.lastShape...)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			inBase := (b*ch + c) * d * h * w
			outBase := (b*ch + c) * od * oh * ow
			for z := 0; z < od; z++ {
				for y := 0; y < oh; y++ {
					for x2 := 0; x2 < ow; x2++ {
						g := gradOut.Data[outBase+(z*oh+y)*ow+x2] * inv
						for pz := 0; pz < p; pz++ {
							for py := 0; py < p; py++ {
								row := inBase + ((z*p+pz)*h+y*p+py)*w + x2*p
								for px := 0; px < p; px++ {
									inputGrad.Data[row+px] += g
								}
							}
						}
					}
				}
			}
		}
	}
	return inputGrad, nil
}

func (a *AvgPool3D) Params() []nn.Param        { return nil }
func (a *AvgPool3D) SetTraining(training bool) {}
