package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/AmeerHamza111/MONAI/tensor"
)

// Metric accumulates per-batch results and reduces them on demand.
// Implementations are reset between evaluation rounds.
type Metric interface {
	Reset()
	Update(pred, target *tensor.Tensor) error
	Compute() (float64, error)
}

// BinarizeLogits thresholds sigmoid(logits) into a 0/1 mask.
func BinarizeLogits(logits *tensor.Tensor, threshold float64) *tensor.Tensor {
	out := tensor.New(logits.Shape...)
	for i, z := range logits.Data {
		if 1/(1+math.Exp(-z)) >= threshold {
			out.Data[i] = 1
		}
	}
	return out
}

// MeanDice averages the Dice overlap of binary masks across all batch
// items seen since the last Reset. An item where both masks are empty
// scores a perfect 1.
type MeanDice struct {
	scores []float64
}

func NewMeanDice() *MeanDice { return &MeanDice{} }

func (m *MeanDice) Reset() { m.scores = m.scores[:0] }

func (m *MeanDice) Update(pred, target *tensor.Tensor) error {
	if !tensor.SameShape(pred, target) {
		return fmt.Errorf("mean dice shape mismatch: pred %v, target %v", pred.Shape, target.Shape)
	}
	if len(pred.Shape) < 3 {
		return fmt.Errorf("mean dice needs [B,C,spatial...], got %v", pred.Shape)
	}
	items := pred.Shape[0] * pred.Shape[1]
	voxels := pred.NumElements() / items
	for it := 0; it < items; it++ {
		base := it * voxels
		var inter, sumP, sumG float64
		for v := 0; v < voxels; v++ {
			p, g := pred.Data[base+v], target.Data[base+v]
			inter += p * g
			sumP += p
			sumG += g
		}
		if sumP+sumG == 0 {
			m.scores = append(m.scores, 1)
			continue
		}
		m.scores = append(m.scores, 2*inter/(sumP+sumG))
	}
	return nil
}

func (m *MeanDice) Compute() (float64, error) {
	if len(m.scores) == 0 {
		return 0, fmt.Errorf("mean dice: no batches seen")
	}
	return stat.Mean(m.scores, nil), nil
}

// Accuracy is the fraction of voxels whose binary prediction matches
// the target.
type Accuracy struct {
	correct, total int
}

func NewAccuracy() *Accuracy { return &Accuracy{} }

func (a *Accuracy) Reset() { a.correct, a.total = 0, 0 }

func (a *Accuracy) Update(pred, target *tensor.Tensor) error {
	if !tensor.SameShape(pred, target) {
		return fmt.Errorf("accuracy shape mismatch: pred %v, target %v", pred.Shape, target.Shape)
	}
	for i := range pred.Data {
		if (pred.Data[i] != 0) == (target.Data[i] != 0) {
			a.correct++
		}
	}
	a.total += pred.NumElements()
	return nil
}

func (a *Accuracy) Compute() (float64, error) {
	if a.total == 0 {
		return 0, fmt.Errorf("accuracy: no batches seen")
	}
	return float64(a.correct) / float64(a.total), nil
}
