package transforms

import (
	"fmt"
	"math/rand"

	"github.com/AmeerHamza111/MONAI/nifti"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// Sample bundles an image with its segmentation mask so spatial
// transforms keep the two aligned.
type Sample struct {
	Image *tensor.Tensor
	Mask  *tensor.Tensor

	ImagePath string
	MaskPath  string
}

// Transform maps a sample to a new sample. Random transforms draw from
// the supplied rng and nothing else, so a pipeline is reproducible per
// seed.
type Transform interface {
	Apply(rng *rand.Rand, s Sample) (Sample, error)
}

// Compose applies transforms in order.
type Compose []Transform

func (c Compose) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	var err error
	for _, t := range c {
		if s, err = t.Apply(rng, s); err != nil {
			return Sample{}, err
		}
	}
	return s, nil
}

// LoadPair reads the sample's image and mask files into [D,H,W] tensors.
type LoadPair struct{}

func (LoadPair) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	img, err := nifti.ReadFile(s.ImagePath)
	if err != nil {
		return Sample{}, fmt.Errorf("load image: %w", err)
	}
	mask, err := nifti.ReadFile(s.MaskPath)
	if err != nil {
		return Sample{}, fmt.Errorf("load mask: %w", err)
	}
	s.Image, s.Mask = img, mask
	return s, nil
}

// ScaleIntensity rescales the image to [0, 1]. The mask is untouched. A
// constant image maps to all zeros.
type ScaleIntensity struct{}

func (ScaleIntensity) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	if s.Image == nil {
		return Sample{}, fmt.Errorf("scale intensity: sample has no image")
	}
	lo, hi := s.Image.MinMax()
	out := tensor.New(s.Image.Shape...)
	if hi > lo {
		inv := 1 / (hi - lo)
		for i, v := range s.Image.Data {
			out.Data[i] = (v - lo) * inv
		}
	}
	s.Image = out
	return s, nil
}

// EnsureChannel inserts a leading channel axis on both image and mask,
// turning [D,H,W] into [1,D,H,W].
type EnsureChannel struct{}

func (EnsureChannel) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	var err error
	if s.Image, err = addChannel(s.Image); err != nil {
		return Sample{}, fmt.Errorf("image: %w", err)
	}
	if s.Mask, err = addChannel(s.Mask); err != nil {
		return Sample{}, fmt.Errorf("mask: %w", err)
	}
	return s, nil
}

func addChannel(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("ensure channel: nil tensor")
	}
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("ensure channel: want [D,H,W], got %v", t.Shape)
	}
	return t.Reshape(1, t.Shape[0], t.Shape[1], t.Shape[2])
}
