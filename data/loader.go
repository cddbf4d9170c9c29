package data

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/AmeerHamza111/MONAI/parallel"
	"github.com/AmeerHamza111/MONAI/tensor"
	"github.com/AmeerHamza111/MONAI/transforms"
)

// Batch is a collated set of samples. Images and Masks are [B,C,D,H,W]
// with identical layout; Indices names the dataset positions stacked
// into each row.
type Batch struct {
	Images  *tensor.Tensor
	Masks   *tensor.Tensor
	Indices []int
}

func (b Batch) Size() int { return len(b.Indices) }

// LoaderConfig controls batching. A zero Workers count means one worker
// per CPU.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	DropLast  bool
	Workers   int
	Seed      int64
}

// Loader assembles dataset samples into batches. Sample preparation
// runs on a bounded worker pool; randomness is keyed to (seed, epoch,
// dataset index), so results do not depend on the worker count.
type Loader struct {
	ds  Dataset
	cfg LoaderConfig
}

func NewLoader(ds Dataset, cfg LoaderConfig) (*Loader, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("loader needs a non-empty dataset")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Loader{ds: ds, cfg: cfg}, nil
}

// Batches reports how many batches one epoch yields.
func (l *Loader) Batches() int {
	n := l.ds.Len() / l.cfg.BatchSize
	if !l.cfg.DropLast && l.ds.Len()%l.cfg.BatchSize != 0 {
		n++
	}
	return n
}

// Epoch iterates the dataset once in epoch-dependent order and calls fn
// for every batch. It stops early when ctx is cancelled or fn fails,
// after the in-flight batch's workers have drained.
func (l *Loader) Epoch(ctx context.Context, epoch int, fn func(Batch) error) error {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.cfg.Shuffle {
		shuffleRng := rand.New(rand.NewSource(l.cfg.Seed + int64(epoch)))
		shuffleRng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	for start := 0; start < len(order); start += l.cfg.BatchSize {
		end := start + l.cfg.BatchSize
		if end > len(order) {
			if l.cfg.DropLast {
				break
			}
			end = len(order)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := l.collate(ctx, epoch, order[start:end])
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) collate(ctx context.Context, epoch int, indices []int) (Batch, error) {
	samples := make([]transforms.Sample, len(indices))
	err := parallel.ForEachErr(len(indices), l.cfg.Workers, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := indices[i]
		rng := rand.New(rand.NewSource(l.sampleSeed(epoch, idx)))
		s, err := l.ds.At(rng, idx)
		if err != nil {
			return err
		}
		samples[i] = s
		return nil
	})
	if err != nil {
		return Batch{}, err
	}

	images := make([]*tensor.Tensor, len(samples))
	masks := make([]*tensor.Tensor, len(samples))
	for i, s := range samples {
		images[i], masks[i] = s.Image, s.Mask
	}
	img, err := tensor.Stack(images)
	if err != nil {
		return Batch{}, fmt.Errorf("collate images: %w", err)
	}
	mask, err := tensor.Stack(masks)
	if err != nil {
		return Batch{}, fmt.Errorf("collate masks: %w", err)
	}
	return Batch{Images: img, Masks: mask, Indices: append([]int(nil), indices...)}, nil
}

// sampleSeed derives one rng seed per (epoch, index) pair so a sample's
// random transforms are reproducible under any worker schedule.
func (l *Loader) sampleSeed(epoch, idx int) int64 {
	return l.cfg.Seed + int64(epoch)*int64(l.ds.Len()) + int64(idx) + 1
}
