package networks

import (
	"math/rand"

	"github.com/AmeerHamza111/MONAI/nn"
)

// DefaultSegmentation is the standard volumetric segmentation network:
// five levels with doubling channels, stride-2 downsampling and two
// residual subunits per level.
func DefaultSegmentation(rng *rand.Rand) (*UNet, error) {
	return NewUNet(rng, UNetConfig{
		InChannels:  1,
		OutChannels: 1,
		Channels:    []int{16, 32, 64, 128, 256},
		Strides:     []int{2, 2, 2, 2},
		NumResUnits: 2,
	})
}

// TinySegmentation is a two-level variant small enough for smoke runs.
func TinySegmentation(rng *rand.Rand) (*UNet, error) {
	return NewUNet(rng, UNetConfig{
		InChannels:  1,
		OutChannels: 1,
		Channels:    []int{4, 8},
		Strides:     []int{2},
		NumResUnits: 1,
	})
}

// CountParams sums the element counts of all learnable tensors.
func CountParams(l nn.Layer) int {
	n := 0
	for _, p := range l.Params() {
		n += p.Value.NumElements()
	}
	return n
}
