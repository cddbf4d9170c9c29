package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/losses"
	"github.com/AmeerHamza111/MONAI/metrics"
	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/optim"
	"github.com/AmeerHamza111/MONAI/utils"
)

// NewTrainer builds an engine whose step runs forward, Dice loss,
// backward and an optimizer step over the network's parameters.
func NewTrainer(net nn.Layer, criterion *losses.DiceLoss, opt optim.Optimizer) *Engine {
	return NewTimedTrainer(net, criterion, opt, &utils.TimingStats{})
}

// NewTimedTrainer is NewTrainer with per-phase durations accumulated
// into stats after every step.
func NewTimedTrainer(net nn.Layer, criterion *losses.DiceLoss, opt optim.Optimizer, stats *utils.TimingStats) *Engine {
	params := net.Params()
	return New("trainer", func(e *Engine, b data.Batch) (Output, error) {
		net.SetTraining(true)
		start := time.Now()
		logits, err := net.Forward(b.Images)
		if err != nil {
			return Output{}, fmt.Errorf("forward: %w", err)
		}
		stats.ForwardPassTime += time.Since(start)

		start = time.Now()
		loss, grad, err := criterion.Forward(logits, b.Masks)
		if err != nil {
			return Output{}, fmt.Errorf("loss: %w", err)
		}
		stats.LossComputationTime += time.Since(start)

		start = time.Now()
		if _, err := net.Backward(grad); err != nil {
			return Output{}, fmt.Errorf("backward: %w", err)
		}
		stats.BackwardPassTime += time.Since(start)

		start = time.Now()
		if err := opt.Step(params); err != nil {
			return Output{}, fmt.Errorf("optimizer: %w", err)
		}
		stats.UpdateTime += time.Since(start)

		return Output{Loss: loss, BatchSize: b.Size(), Batch: b}, nil
	})
}

// EvalThreshold binarizes sigmoid probabilities into predicted masks.
const EvalThreshold = 0.5

// NewEvaluator builds a single-pass engine that runs the network in eval
// mode, accumulates the given metrics per iteration, and publishes their
// reductions into State.Metrics at the end of the pass. The optional
// criterion contributes a validation loss.
func NewEvaluator(net nn.Layer, criterion *losses.DiceLoss, ms map[string]metrics.Metric) *Engine {
	names := make([]string, 0, len(ms))
	for name := range ms {
		names = append(names, name)
	}
	sort.Strings(names)

	e := New("evaluator", func(e *Engine, b data.Batch) (Output, error) {
		net.SetTraining(false)
		logits, err := net.Forward(b.Images)
		if err != nil {
			return Output{}, fmt.Errorf("forward: %w", err)
		}
		out := Output{BatchSize: b.Size(), Preds: logits, Batch: b}
		if criterion != nil {
			if out.Loss, _, err = criterion.Forward(logits, b.Masks); err != nil {
				return Output{}, fmt.Errorf("loss: %w", err)
			}
		}
		pred := metrics.BinarizeLogits(logits, EvalThreshold)
		for _, name := range names {
			if err := ms[name].Update(pred, b.Masks); err != nil {
				return Output{}, fmt.Errorf("metric %s: %w", name, err)
			}
		}
		return out, nil
	})
	e.AddEventHandler(EpochStarted, func(e *Engine) error {
		for _, name := range names {
			ms[name].Reset()
		}
		return nil
	})
	e.AddEventHandler(EpochCompleted, func(e *Engine) error {
		for _, name := range names {
			v, err := ms[name].Compute()
			if err != nil {
				return fmt.Errorf("metric %s: %w", name, err)
			}
			e.State.Metrics[name] = v
		}
		return nil
	})
	return e
}
