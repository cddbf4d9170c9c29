package handlers

import (
	"context"

	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// memSource replays fixed batches every epoch.
type memSource struct {
	batches []data.Batch
}

func (s memSource) Batches() int { return len(s.batches) }

func (s memSource) Epoch(ctx context.Context, epoch int, fn func(data.Batch) error) error {
	for _, b := range s.batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// logitBatch pairs strong logits with the mask they predict, so a
// passthrough network scores perfectly.
func logitBatch(size int, indices ...int) data.Batch {
	img := tensor.New(size, 1, 2, 2, 2)
	mask := tensor.New(size, 1, 2, 2, 2)
	for i := range img.Data {
		if i%2 == 0 {
			img.Data[i] = 6
			mask.Data[i] = 1
		} else {
			img.Data[i] = -6
		}
	}
	if indices == nil {
		indices = make([]int, size)
	}
	return data.Batch{Images: img, Masks: mask, Indices: indices}
}

// passthrough returns its input unchanged.
type passthrough struct{}

func (passthrough) Forward(x *tensor.Tensor) (*tensor.Tensor, error)  { return x, nil }
func (passthrough) Backward(g *tensor.Tensor) (*tensor.Tensor, error) { return g, nil }
func (passthrough) Params() []nn.Param                                { return nil }
func (passthrough) SetTraining(bool)                                  {}

// constEngine counts iterations and reports a fixed loss.
func constEngine(loss float64) *engine.Engine {
	return engine.New("trainer", func(e *engine.Engine, b data.Batch) (engine.Output, error) {
		return engine.Output{Loss: loss, BatchSize: b.Size(), Batch: b}, nil
	})
}
