package layers

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// colsTileSize bounds the im2col buffer to kernelVolume*inChan rows by
// this many output positions per GEMM call, keeping memory flat for
// large volumes.
const colsTileSize = 4096

// Conv3D is a 3-D convolutional layer with cubic kernel, isotropic
// stride and zero padding.
type Conv3D struct {
	inChan, outChan int
	kernel          int
	stride          int
	pad             int

	W *tensor.Tensor // weights: [outChan, inChan, k, k, k]
	B *tensor.Tensor // bias: [outChan]

	// Cached input for backward pass
	lastInput *tensor.Tensor

	// Gradient storage
	gradW *tensor.Tensor
	gradB *tensor.Tensor
}

// NewConv3D creates a Conv3D layer. Weights are drawn from
// normal(0, sqrt(2/(fanIn+fanOut))), biases start at zero.
func NewConv3D(rng *rand.Rand, inChan, outChan, kernel, stride, pad int) *Conv3D {
	c := &Conv3D{
		inChan:  inChan,
		outChan: outChan,
		kernel:  kernel,
		stride:  stride,
		pad:     pad,
		W:       tensor.New(outChan, inChan, kernel, kernel, kernel),
		B:       tensor.New(outChan),
		gradW:   tensor.New(outChan, inChan, kernel, kernel, kernel),
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
func (c *Conv3D) OutSize(in int) int {
	return (in+2*c.pad-c.kernel)/c.stride + 1
}

func (c *Conv3D) checkInput(input *tensor.Tensor) (b, d, h, w int, err error) {
	if len(input.Shape) != 5 {
		return 0, 0, 0, 0, fmt.Errorf("Conv3D input must be 5-D [B,C,D,H,W], got %v", input.Shape)
	}
	if input.Shape[1] != c.inChan {
		return 0, 0, 0, 0, fmt.Errorf("Conv3D expects %d input channels, got %d", c.inChan, input.Shape[1])
	}
	b, d, h, w = input.Shape[0], input.Shape[2], input.Shape[3], input.Shape[4]
	if c.OutSize(d) < 1 || c.OutSize(h) < 1 || c.OutSize(w) < 1 {
		return 0, 0, 0, 0, fmt.Errorf("Conv3D input %v too small for kernel %d stride %d pad %d",
			input.Shape, c.kernel, c.stride, c.pad)
	}
	return b, d, h, w, nil
}

// Forward performs the convolution as a sequence of tiled im2col GEMMs.
func (c *Conv3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	batch, d, h, w, err := c.checkInput(input)
	if err != nil {
		return nil, err
	}
	od, oh, ow := c.OutSize(d), c.OutSize(h), c.OutSize(w)
	n := od * oh * ow
	kCols := c.inChan * c.kernel * c.kernel * c.kernel

	// Cache input for backward pass
	c.lastInput = input

	output := tensor.New(batch, c.outChan, od, oh, ow)
	wMat := mat.NewDense(c.outChan, kCols, c.W.Data)
	cols := make([]float64, kCols*min(n, colsTileSize))

	for b := 0; b < batch; b++ {
		in := input.Data[b*c.inChan*d*h*w:]
		out := output.Data[b*c.outChan*n : (b+1)*c.outChan*n]
		outMat := mat.NewDense(c.outChan, n, out)

		for j0 := 0; j0 < n; j0 += colsTileSize {
			j1 := min(j0+colsTileSize, n)
			tn := j1 - j0
			colsMat := mat.NewDense(kCols, tn, cols[:kCols*tn])
			c.im2col(in, d, h, w, od, oh, ow, j0, j1, cols)
			dst := outMat.Slice(0, c.outChan, j0, j1).(*mat.Dense)
			dst.Mul(wMat, colsMat)
		}

		for oc := 0; oc < c.outChan; oc++ {
			row := out[oc*n : (oc+1)*n]
			bias := c.B.Data[oc]
			for i := range row {
				row[i] += bias
			}
		}
	}
	return output, nil
}

// Backward computes bias, weight, and input gradients with the same
// tiling as Forward.
func (c *Conv3D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("Conv3D: no cached input for backward pass")
	}
	batch, d, h, w, err := c.checkInput(c.lastInput)
	if err != nil {
		return nil, err
	}
	od, oh, ow := c.OutSize(d), c.OutSize(h), c.OutSize(w)
	n := od * oh * ow
	kCols := c.inChan * c.kernel * c.kernel * c.kernel

	want := []int{batch, c.outChan, od, oh, ow}
	if len(gradOut.Shape) != 5 {
		return nil, fmt.Errorf("Conv3D gradOut must be 5-D, got %v", gradOut.Shape)
	}
	for i := range want {
		if gradOut.Shape[i] != want[i] {
			return nil, fmt.Errorf("Conv3D gradOut shape %v, want %v", gradOut.Shape, want)
		}
	}

	// Grads are zeroed in place so Param.Grad pointers stay valid
	// across calls.
	c.gradW.Zero()
	c.gradB.Zero()
	inputGrad := tensor.New(c.lastInput.Shape...)

	wMat := mat.NewDense(c.outChan, kCols, c.W.Data)
	cols := make([]float64, kCols*min(n, colsTileSize))

	for b := 0; b < batch; b++ {
		in := c.lastInput.Data[b*c.inChan*d*h*w:]
		inGrad := inputGrad.Data[b*c.inChan*d*h*w:]
		g := gradOut.Data[b*c.outChan*n : (b+1)*c.outChan*n]
		gMat := mat.NewDense(c.outChan, n, g)

		for oc := 0; oc < c.outChan; oc++ {
			sum := 0.0
			for _, v := range g[oc*n : (oc+1)*n] {
				sum += v
			}
			c.gradB.Data[oc] += sum
		}

		for j0 := 0; j0 < n; j0 += colsTileSize {
			j1 := min(j0+colsTileSize, n)
			tn := j1 - j0
			colsMat := mat.NewDense(kCols, tn, cols[:kCols*tn])
			c.im2col(in, d, h, w, od, oh, ow, j0, j1, cols)
			gSlice := gMat.Slice(0, c.outChan, j0, j1)

			// gradW += gradOut_tile × cols_tileᵀ
			var gw mat.Dense
			gw.Mul(gSlice, colsMat.T())
			raw := gw.RawMatrix()
			for i := 0; i < c.outChan; i++ {
				row := raw.Data[i*raw.Stride : i*raw.Stride+kCols]
				dst := c.gradW.Data[i*kCols : (i+1)*kCols]
				for k := range row {
					dst[k] += row[k]
				}
			}

			// input gradient: scatter Wᵀ × gradOut_tile back through im2col
			var cg mat.Dense
			cg.Mul(wMat.T(), gSlice)
			c.col2im(&cg, inGrad, d, h, w, od, oh, ow, j0, j1)
		}
	}
	return inputGrad, nil
}

// im2col fills dst (row-major [kCols, j1-j0]) with the input patch matrix
// for output positions [j0, j1). Out-of-bounds taps read as zero.
func (c *Conv3D) im2col(in []float64, d, h, w, od, oh, ow, j0, j1 int, dst []float64) {
	k, s, p := c.kernel, c.stride, c.pad
	tn := j1 - j0
	r := 0
	for ic := 0; ic < c.inChan; ic++ {
		icBase := ic * d * h * w
		for kd := 0; kd < k; kd++ {
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					row := dst[r*tn : (r+1)*tn]
					for j := j0; j < j1; j++ {
						odj := j / (oh * ow)
						rem := j % (oh * ow)
						z := odj*s - p + kd
						y := (rem/ow)*s - p + kh
						x := (rem%ow)*s - p + kw
						if z < 0 || z >= d || y < 0 || y >= h || x < 0 || x >= w {
							row[j-j0] = 0
						} else {
							row[j-j0] = in[icBase+(z*h+y)*w+x]
						}
					}
					r++
				}
			}
		}
	}
}

// col2im scatter-adds a patch-matrix gradient back onto the input grid,
// the adjoint of im2col.
func (c *Conv3D) col2im(cg *mat.Dense, dst []float64, d, h, w, od, oh, ow, j0, j1 int) {
	k, s, p := c.kernel, c.stride, c.pad
	raw := cg.RawMatrix()
	r := 0
	for ic := 0; ic < c.inChan; ic++ {
		icBase := ic * d * h * w
		for kd := 0; kd < k; kd++ {
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					row := raw.Data[r*raw.Stride:]
					for j := j0; j < j1; j++ {
						odj := j / (oh * ow)
						rem := j % (oh * ow)
						z := odj*s - p + kd
						y := (rem/ow)*s - p + kh
						x := (rem%ow)*s - p + kw
						if z < 0 || z >= d || y < 0 || y >= h || x < 0 || x >= w {
							continue
						}
						dst[icBase+(z*h+y)*w+x] += row[j-j0]
					}
					r++
				}
			}
		}
	}
}

func (c *Conv3D) Params() []nn.Param {
	return []nn.Param{
		{Name: "weight", Value: c.W, Grad: c.gradW},
		{Name: "bias", Value: c.B, Grad: c.gradB},
	}
}

func (c *Conv3D) SetTraining(training bool) {}
