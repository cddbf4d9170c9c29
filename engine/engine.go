package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// Event marks a position in the run loop where handlers can hook in.
type Event int

const (
	Started Event = iota
	EpochStarted
	IterationStarted
	IterationCompleted
	EpochCompleted
	Completed
)

func (e Event) String() string {
	switch e {
	case Started:
		return "Started"
	case EpochStarted:
		return "EpochStarted"
	case IterationStarted:
		return "IterationStarted"
	case IterationCompleted:
		return "IterationCompleted"
	case EpochCompleted:
		return "EpochCompleted"
	case Completed:
		return "Completed"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Output is what one process step produced. Preds is set by processes
// that want handlers to see raw predictions (evaluation); trainers leave
// it nil to keep peak memory down.
type Output struct {
	Loss      float64
	BatchSize int
	Preds     *tensor.Tensor
	Batch     data.Batch
}

// State is the engine's observable progress. Epoch and Iteration are
// 1-based and monotonically increasing across Run calls unless reset.
type State struct {
	Epoch         int
	MaxEpochs     int
	Iteration     int
	EpochLength   int
	Output        Output
	EpochLoss     float64
	EpochDuration time.Duration
	Metrics       map[string]float64
}

// BatchSource feeds batches for one epoch at a time. *data.Loader is the
// canonical implementation.
type BatchSource interface {
	Batches() int
	Epoch(ctx context.Context, epoch int, fn func(data.Batch) error) error
}

// Process computes one step over a batch.
type Process func(e *Engine, b data.Batch) (Output, error)

// Handler reacts to an engine event. Returning an error aborts the run.
type Handler func(e *Engine) error

// Engine drives a process function over a batch source and fires events
// in a fixed order: Started, then per epoch EpochStarted, per iteration
// IterationStarted / IterationCompleted, EpochCompleted, and finally
// Completed exactly once. Handlers run in registration order.
type Engine struct {
	Name  string
	State State

	process   Process
	handlers  map[Event][]Handler
	terminate bool
	ctx       context.Context

	epochLossSum float64
	epochSamples int
}

var errTerminated = errors.New("engine: terminated")

func New(name string, process Process) *Engine {
	return &Engine{
		Name:     name,
		process:  process,
		handlers: map[Event][]Handler{},
		State:    State{Metrics: map[string]float64{}},
	}
}

func (e *Engine) AddEventHandler(ev Event, h Handler) {
	e.handlers[ev] = append(e.handlers[ev], h)
}

// Terminate requests a clean stop at the next iteration boundary. The
// current epoch still fires EpochCompleted, then the run ends with
// Completed.
func (e *Engine) Terminate() { e.terminate = true }

// Context returns the context of the run in progress, so handlers can
// pass it on to nested work such as a validation pass.
func (e *Engine) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

func (e *Engine) fire(ev Event) error {
	for _, h := range e.handlers[ev] {
		if err := h(e); err != nil {
			return fmt.Errorf("%s %s handler: %w", e.Name, ev, err)
		}
	}
	return nil
}

// Run trains until State.Epoch reaches maxEpochs, resuming from whatever
// epoch the state already holds. On process or handler error the run
// aborts without firing Completed.
func (e *Engine) Run(ctx context.Context, src BatchSource, maxEpochs int) error {
	if src == nil {
		return fmt.Errorf("%s: nil batch source", e.Name)
	}
	e.State.MaxEpochs = maxEpochs
	e.terminate = false
	e.ctx = ctx

	if err := e.fire(Started); err != nil {
		return err
	}
	for e.State.Epoch < maxEpochs && !e.terminate {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.State.Epoch++
		e.State.EpochLength = src.Batches()
		e.epochLossSum, e.epochSamples = 0, 0
		start := time.Now()
		if err := e.fire(EpochStarted); err != nil {
			return err
		}
		err := src.Epoch(ctx, e.State.Epoch, func(b data.Batch) error {
			e.State.Iteration++
			if err := e.fire(IterationStarted); err != nil {
				return err
			}
			out, err := e.process(e, b)
			if err != nil {
				return fmt.Errorf("%s epoch %d iteration %d: %w", e.Name, e.State.Epoch, e.State.Iteration, err)
			}
			e.State.Output = out
			e.epochLossSum += out.Loss * float64(out.BatchSize)
			e.epochSamples += out.BatchSize
			if err := e.fire(IterationCompleted); err != nil {
				return err
			}
			if e.terminate {
				return errTerminated
			}
			return nil
		})
		if err != nil && !errors.Is(err, errTerminated) {
			return err
		}
		if e.epochSamples > 0 {
			e.State.EpochLoss = e.epochLossSum / float64(e.epochSamples)
		}
		e.State.EpochDuration = time.Since(start)
		if err := e.fire(EpochCompleted); err != nil {
			return err
		}
	}
	return e.fire(Completed)
}

// RunOnce resets the position counters and drives a single pass, the
// mode evaluators use.
func (e *Engine) RunOnce(ctx context.Context, src BatchSource) error {
	e.State.Epoch = 0
	e.State.Iteration = 0
	return e.Run(ctx, src, 1)
}
