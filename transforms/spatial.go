package transforms

import (
	"fmt"
	"math/rand"

	"github.com/AmeerHamza111/MONAI/tensor"
)

// RandSpatialCrop cuts a [C,Size0,Size1,Size2] window at one random
// offset out of both image and mask.
type RandSpatialCrop struct {
	Size [3]int
}

func (c RandSpatialCrop) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	spatial, err := alignedSpatialDims(s)
	if err != nil {
		return Sample{}, err
	}
	var off [3]int
	for i := range off {
		room := spatial[i] - c.Size[i]
		if room < 0 {
			return Sample{}, fmt.Errorf("crop size %v exceeds volume dims %v", c.Size, spatial)
		}
		if room > 0 {
			off[i] = rng.Intn(room + 1)
		}
	}
	s.Image = crop(s.Image, off, c.Size)
	s.Mask = crop(s.Mask, off, c.Size)
	return s, nil
}

// CenterSpatialCrop cuts the centered [C,Size0,Size1,Size2] window.
type CenterSpatialCrop struct {
	Size [3]int
}

func (c CenterSpatialCrop) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	spatial, err := alignedSpatialDims(s)
	if err != nil {
		return Sample{}, err
	}
	var off [3]int
	for i := range off {
		if spatial[i] < c.Size[i] {
			return Sample{}, fmt.Errorf("crop size %v exceeds volume dims %v", c.Size, spatial)
		}
		off[i] = (spatial[i] - c.Size[i]) / 2
	}
	s.Image = crop(s.Image, off, c.Size)
	s.Mask = crop(s.Mask, off, c.Size)
	return s, nil
}

// RandFlip mirrors image and mask along one spatial axis (0, 1 or 2)
// with the given probability.
type RandFlip struct {
	Axis int
	Prob float64
}

func (f RandFlip) Apply(rng *rand.Rand, s Sample) (Sample, error) {
	if f.Axis < 0 || f.Axis > 2 {
		return Sample{}, fmt.Errorf("flip axis %d out of range", f.Axis)
	}
	if _, err := alignedSpatialDims(s); err != nil {
		return Sample{}, err
	}
	if rng.Float64() >= f.Prob {
		return s, nil
	}
	s.Image = flip(s.Image, f.Axis)
	s.Mask = flip(s.Mask, f.Axis)
	return s, nil
}

// alignedSpatialDims checks both tensors are channel-first with matching
// spatial extents and returns those extents.
func alignedSpatialDims(s Sample) ([3]int, error) {
	var dims [3]int
	if s.Image == nil || s.Mask == nil {
		return dims, fmt.Errorf("sample not loaded")
	}
	if len(s.Image.Shape) != 4 || len(s.Mask.Shape) != 4 {
		return dims, fmt.Errorf("spatial transforms want [C,D,H,W], got image %v, mask %v",
			s.Image.Shape, s.Mask.Shape)
	}
	for i := 0; i < 3; i++ {
		if s.Image.Shape[i+1] != s.Mask.Shape[i+1] {
			return dims, fmt.Errorf("image dims %v and mask dims %v differ", s.Image.Shape, s.Mask.Shape)
		}
		dims[i] = s.Image.Shape[i+1]
	}
	return dims, nil
}

func crop(t *tensor.Tensor, off, size [3]int) *tensor.Tensor {
	ch, d, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := tensor.New(ch, size[0], size[1], size[2])
	for c := 0; c < ch; c++ {
		for z := 0; z < size[0]; z++ {
			for y := 0; y < size[1]; y++ {
				src := ((c*d+off[0]+z)*h+off[1]+y)*w + off[2]
				dst := ((c*size[0]+z)*size[1] + y) * size[2]
				copy(out.Data[dst:dst+size[2]], t.Data[src:src+size[2]])
			}
		}
	}
	return out
}

func flip(t *tensor.Tensor, axis int) *tensor.Tensor {
	ch, d, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := tensor.New(t.Shape...)
	for c := 0; c < ch; c++ {
		for z := 0; z < d; z++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					sz, sy, sx := z, y, x
					switch axis {
					case 0:
						sz = d - 1 - z
					case 1:
						sy = h - 1 - y
					case 2:
						sx = w - 1 - x
					}
					out.Data[((c*d+z)*h+y)*w+x] = t.Data[((c*d+sz)*h+sy)*w+sx]
				}
			}
		}
	}
	return out
}
