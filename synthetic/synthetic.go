// Package synthetic generates random volumetric image/segmentation pairs
// for exercising the training pipeline without real scan data.
package synthetic

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"runtime"

	"github.com/AmeerHamza111/MONAI/nifti"
	"github.com/AmeerHamza111/MONAI/parallel"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// Config controls volume generation.
type Config struct {
	Size       int     // edge length of the cubic volume in voxels
	NumObjects int     // spheroids per volume
	RadMin     int     // smallest spheroid radius
	RadMax     int     // largest spheroid radius (also the border margin)
	NoiseMax   float64 // amplitude of the uniform noise floor
	Seed       int64
	Workers    int // concurrent volume writers, NumCPU when 0
}

// DefaultConfig matches the 128-voxel volumes the tutorial flow trains on.
func DefaultConfig() Config {
	return Config{
		Size:       128,
		NumObjects: 12,
		RadMin:     5,
		RadMax:     30,
		NoiseMax:   0.2,
		Seed:       42,
	}
}

func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}
	if c.NumObjects <= 0 {
		return fmt.Errorf("num objects must be positive, got %d", c.NumObjects)
	}
	if c.RadMin < 1 || c.RadMax <= c.RadMin {
		return fmt.Errorf("need 1 <= rad min < rad max, got [%d, %d]", c.RadMin, c.RadMax)
	}
	if c.Size <= 2*c.RadMax {
		return fmt.Errorf("size %d too small for rad max %d", c.Size, c.RadMax)
	}
	if c.NoiseMax < 0 || c.NoiseMax >= 1 {
		return fmt.Errorf("noise max must be in [0, 1), got %f", c.NoiseMax)
	}
	return nil
}

// Volume draws one image/segmentation pair from rng. The image holds
// spheroids of random intensity in (0.5, 1.0] over a uniform noise floor,
// rescaled to [0, 1]; the mask is 1 exactly inside the spheroids.
func Volume(rng *rand.Rand, cfg Config) (img, seg *tensor.Tensor) {
	s := cfg.Size
	img = tensor.New(s, s, s)
	seg = tensor.New(s, s, s)

	for o := 0; o < cfg.NumObjects; o++ {
		cz := cfg.RadMax + rng.Intn(s-2*cfg.RadMax)
		cy := cfg.RadMax + rng.Intn(s-2*cfg.RadMax)
		cx := cfg.RadMax + rng.Intn(s-2*cfg.RadMax)
		rad := cfg.RadMin + rng.Intn(cfg.RadMax-cfg.RadMin)
		val := 0.5 + 0.5*rng.Float64()

		r2 := rad * rad
		for z := cz - rad; z <= cz+rad; z++ {
			for y := cy - rad; y <= cy+rad; y++ {
				for x := cx - rad; x <= cx+rad; x++ {
					dz, dy, dx := z-cz, y-cy, x-cx
					if dz*dz+dy*dy+dx*dx > r2 {
						continue
					}
					idx := (z*s+y)*s + x
					img.Data[idx] = val
					seg.Data[idx] = 1
				}
			}
		}
	}

	// Noise acts as a floor under the objects, then the image is
	// rescaled to [0, 1]. The mask is derived before noise.
	min, max := 1.0, 0.0
	for i := range img.Data {
		if n := rng.Float64() * cfg.NoiseMax; n > img.Data[i] {
			img.Data[i] = n
		}
		if img.Data[i] < min {
			min = img.Data[i]
		}
		if img.Data[i] > max {
			max = img.Data[i]
		}
	}
	if max > min {
		scale := 1 / (max - min)
		for i := range img.Data {
			img.Data[i] = (img.Data[i] - min) * scale
		}
	}
	return img, seg
}

// WriteDataset writes count pairs under dir as imgNNN.nii.gz/segNNN.nii.gz
// and returns the two path lists, index-aligned by generation order.
// Generation is deterministic per (seed, index), so the worker count does
// not change the output.
func WriteDataset(dir string, count int, cfg Config) (images, segs []string, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if count <= 0 {
		return nil, nil, fmt.Errorf("count must be positive, got %d", count)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	images = make([]string, count)
	segs = make([]string, count)
	err = parallel.ForEachErr(count, workers, func(i int) error {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		img, seg := Volume(rng, cfg)

		imgPath := filepath.Join(dir, fmt.Sprintf("img%03d.nii.gz", i))
		if err := nifti.WriteFile(imgPath, img, nifti.TypeFloat32, "synthetic image"); err != nil {
			return err
		}
		segPath := filepath.Join(dir, fmt.Sprintf("seg%03d.nii.gz", i))
		if err := nifti.WriteFile(segPath, seg, nifti.TypeUint8, "synthetic segmentation"); err != nil {
			return err
		}
		images[i] = imgPath
		segs[i] = segPath
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return images, segs, nil
}
