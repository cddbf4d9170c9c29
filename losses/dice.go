package losses

import (
	"fmt"
	"math"

	"github.com/AmeerHamza111/MONAI/tensor"
)

// DiceLoss is the soft Dice loss over sigmoid-activated logits. The
// overlap is computed per batch item and channel across the spatial
// dimensions, smoothed, and averaged.
type DiceLoss struct {
	SmoothNr float64
	SmoothDr float64
}

func NewDiceLoss() *DiceLoss {
	return &DiceLoss{SmoothNr: 1e-5, SmoothDr: 1e-5}
}

// Forward returns the scalar loss together with its gradient with
// respect to the logits. The target must hold 0/1 values in the same
// shape as the logits, [B,C,spatial...].
func (d *DiceLoss) Forward(logits, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if !tensor.SameShape(logits, target) {
		return 0, nil, fmt.Errorf("dice loss shape mismatch: logits %v, target %v", logits.Shape, target.Shape)
	}
	if len(logits.Shape) < 3 {
		return 0, nil, fmt.Errorf("dice loss needs [B,C,spatial...], got %v", logits.Shape)
	}
	items := logits.Shape[0] * logits.Shape[1]
	voxels := logits.NumElements() / items

	probs := make([]float64, logits.NumElements())
	for i, z := range logits.Data {
		probs[i] = 1 / (1 + math.Exp(-z))
	}

	grad := tensor.New(logits.Shape...)
	total := 0.0
	inv := 1.0 / float64(items)
	for it := 0; it < items; it++ {
		base := it * voxels
		var inter, sumP, sumG float64
		for v := 0; v < voxels; v++ {
			p, g := probs[base+v], target.Data[base+v]
			inter += p * g
			sumP += p
			sumG += g
		}
		num := 2*inter + d.SmoothNr
		den := sumP + sumG + d.SmoothDr
		total += 1 - num/den

		// d(1 - num/den)/dp = -(2g*den - num) / den^2, then through the
		// sigmoid and the mean over items.
		den2 := den * den
		for v := 0; v < voxels; v++ {
			p, g := probs[base+v], target.Data[base+v]
			dp := -(2*g*den - num) / den2
			grad.Data[base+v] = inv * dp * p * (1 - p)
		}
	}
	return total * inv, grad, nil
}
