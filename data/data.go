package data

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/AmeerHamza111/MONAI/parallel"
	"github.com/AmeerHamza111/MONAI/transforms"
)

// Pairs holds index-aligned image and mask paths. Index i of Images and
// index i of Masks always describe the same subject.
type Pairs struct {
	Images []string
	Masks  []string
}

func (p Pairs) Len() int { return len(p.Images) }

func (p Pairs) validate() error {
	if len(p.Images) != len(p.Masks) {
		return fmt.Errorf("%d images but %d masks", len(p.Images), len(p.Masks))
	}
	if len(p.Images) == 0 {
		return fmt.Errorf("empty pair list")
	}
	return nil
}

// PairsFromDir lists img*.nii.gz / seg*.nii.gz files in dir. Glob order
// is lexical, so zero-padded names keep the two lists aligned.
func PairsFromDir(dir string) (Pairs, error) {
	images, err := filepath.Glob(filepath.Join(dir, "img*.nii.gz"))
	if err != nil {
		return Pairs{}, err
	}
	masks, err := filepath.Glob(filepath.Join(dir, "seg*.nii.gz"))
	if err != nil {
		return Pairs{}, err
	}
	p := Pairs{Images: images, Masks: masks}
	if err := p.validate(); err != nil {
		return Pairs{}, fmt.Errorf("%s: %w", dir, err)
	}
	return p, nil
}

// SplitTrainVal takes the first train pairs and the last val pairs. The
// middle is deliberately unused when train+val < total.
func SplitTrainVal(p Pairs, train, val int) (Pairs, Pairs, error) {
	if err := p.validate(); err != nil {
		return Pairs{}, Pairs{}, err
	}
	if train < 1 || val < 1 || train+val > p.Len() {
		return Pairs{}, Pairs{}, fmt.Errorf("cannot split %d pairs into %d train + %d val", p.Len(), train, val)
	}
	n := p.Len()
	trainPairs := Pairs{Images: p.Images[:train], Masks: p.Masks[:train]}
	valPairs := Pairs{Images: p.Images[n-val:], Masks: p.Masks[n-val:]}
	return trainPairs, valPairs, nil
}

// Dataset yields transformed samples by index. At must be safe for
// concurrent calls with distinct rngs; returned samples are read-only.
type Dataset interface {
	Len() int
	At(rng *rand.Rand, i int) (transforms.Sample, error)
}

// PairDataset applies a transform chain to path pairs on every access.
type PairDataset struct {
	pairs Pairs
	chain transforms.Transform
}

func NewPairDataset(pairs Pairs, chain transforms.Transform) (*PairDataset, error) {
	if err := pairs.validate(); err != nil {
		return nil, err
	}
	if chain == nil {
		chain = transforms.Compose{}
	}
	return &PairDataset{pairs: pairs, chain: chain}, nil
}

func (d *PairDataset) Len() int { return d.pairs.Len() }

func (d *PairDataset) At(rng *rand.Rand, i int) (transforms.Sample, error) {
	if i < 0 || i >= d.pairs.Len() {
		return transforms.Sample{}, fmt.Errorf("index %d out of range [0,%d)", i, d.pairs.Len())
	}
	s := transforms.Sample{ImagePath: d.pairs.Images[i], MaskPath: d.pairs.Masks[i]}
	out, err := d.chain.Apply(rng, s)
	if err != nil {
		return transforms.Sample{}, fmt.Errorf("sample %d (%s): %w", i, d.pairs.Images[i], err)
	}
	return out, nil
}

// CacheDataset runs the deterministic head of a pipeline once up front
// and keeps the results in memory; only the random tail runs per access.
type CacheDataset struct {
	cached []transforms.Sample
	random transforms.Transform
}

// NewCacheDataset materializes head(pair) for every pair using up to
// workers goroutines. The head must not depend on its rng.
func NewCacheDataset(pairs Pairs, head, random transforms.Transform, workers int) (*CacheDataset, error) {
	if err := pairs.validate(); err != nil {
		return nil, err
	}
	if head == nil {
		head = transforms.Compose{}
	}
	cached := make([]transforms.Sample, pairs.Len())
	err := parallel.ForEachErr(pairs.Len(), workers, func(i int) error {
		s := transforms.Sample{ImagePath: pairs.Images[i], MaskPath: pairs.Masks[i]}
		out, err := head.Apply(rand.New(rand.NewSource(0)), s)
		if err != nil {
			return fmt.Errorf("caching sample %d (%s): %w", i, pairs.Images[i], err)
		}
		cached[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CacheDataset{cached: cached, random: random}, nil
}

func (d *CacheDataset) Len() int { return len(d.cached) }

func (d *CacheDataset) At(rng *rand.Rand, i int) (transforms.Sample, error) {
	if i < 0 || i >= len(d.cached) {
		return transforms.Sample{}, fmt.Errorf("index %d out of range [0,%d)", i, len(d.cached))
	}
	if d.random == nil {
		return d.cached[i], nil
	}
	return d.random.Apply(rng, d.cached[i])
}
