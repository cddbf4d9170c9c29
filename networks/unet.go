package networks

import (
	"fmt"
	"math/rand"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/nn/layers"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// UNetConfig describes a U-shaped segmentation network. Channels holds the
// feature count of each encoder level from top to bottom, Strides the
// downsampling factor between consecutive levels.
type UNetConfig struct {
	InChannels   int
	OutChannels  int
	Channels     []int
	Strides      []int
	NumResUnits  int
	KernelSize   int
	UpKernelSize int
}

func (c UNetConfig) Validate() error {
	if c.InChannels < 1 || c.OutChannels < 1 {
		return fmt.Errorf("channel counts must be positive, got in=%d out=%d", c.InChannels, c.OutChannels)
	}
	if len(c.Channels) < 2 {
		return fmt.Errorf("need at least two channel levels, got %v", c.Channels)
	}
	if len(c.Strides) != len(c.Channels)-1 {
		return fmt.Errorf("need %d strides for %d channel levels, got %d",
			len(c.Channels)-1, len(c.Channels), len(c.Strides))
	}
	for _, ch := range c.Channels {
		if ch < 1 {
			return fmt.Errorf("channel levels must be positive, got %v", c.Channels)
		}
	}
	for _, s := range c.Strides {
		if s < 1 {
			return fmt.Errorf("strides must be positive, got %v", c.Strides)
		}
	}
	if c.KernelSize%2 == 0 || c.UpKernelSize%2 == 0 {
		return fmt.Errorf("kernel sizes must be odd, got %d and %d", c.KernelSize, c.UpKernelSize)
	}
	return nil
}

// UNet is a residual U-shaped network. Each level downsamples by its
// stride, hands the result to the nested levels below, and concatenates
// their upsampled output back onto the skip path before its own
// upsampling layer. The final layer is a bare convolution, so the network
// emits logits.
type UNet struct {
	Cfg UNetConfig

	model       nn.Layer
	totalStride int
}

// NewUNet builds the network with weights drawn from rng. Kernel sizes
// default to 3 when left zero.
func NewUNet(rng *rand.Rand, cfg UNetConfig) (*UNet, error) {
	if cfg.KernelSize == 0 {
		cfg.KernelSize = 3
	}
	if cfg.UpKernelSize == 0 {
		cfg.UpKernelSize = 3
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("unet config: %w", err)
	}
	b := &unetBuilder{rng: rng, cfg: cfg}
	total := 1
	for _, s := range cfg.Strides {
		total *= s
	}
	return &UNet{
		Cfg:         cfg,
		model:       b.block(cfg.InChannels, cfg.OutChannels, cfg.Channels, cfg.Strides, true),
		totalStride: total,
	}, nil
}

type unetBuilder struct {
	rng *rand.Rand
	cfg UNetConfig
}

// block assembles one level of the U: the nested levels below behind a
// skip connection, a downsampling layer in front and an upsampling layer
// behind, the latter fed with the concatenated channels.
func (b *unetBuilder) block(inChan, outChan int, channels, strides []int, isTop bool) nn.Layer {
	c, s := channels[0], strides[0]
	var sub nn.Layer
	var upChan int
	if len(channels) > 2 {
		sub = b.block(c, c, channels[1:], strides[1:], false)
		upChan = 2 * c
	} else {
		// Bottom of the U, no further downsampling.
		sub = b.downLayer(c, channels[1], 1, false)
		upChan = c + channels[1]
	}
	down := b.downLayer(inChan, c, s, isTop)
	up := b.upLayer(upChan, outChan, s, isTop)
	return nn.NewSequential(down, NewSkipConnection(sub), up)
}

func (b *unetBuilder) downLayer(inChan, outChan, stride int, isTop bool) nn.Layer {
	if b.cfg.NumResUnits > 0 {
		return NewResidualUnit(b.rng, inChan, outChan, stride, b.cfg.KernelSize, b.cfg.NumResUnits, false)
	}
	pad := (b.cfg.KernelSize - 1) / 2
	return nn.NewSequential(
		layers.NewConv3D(b.rng, inChan, outChan, b.cfg.KernelSize, stride, pad),
		layers.NewBatchNorm3D(outChan),
		layers.NewPReLU(0.25),
	)
}

func (b *unetBuilder) upLayer(inChan, outChan, stride int, isTop bool) nn.Layer {
	k := b.cfg.UpKernelSize
	convOnly := isTop && b.cfg.NumResUnits == 0
	seq := nn.NewSequential(
		layers.NewConvTranspose3D(b.rng, inChan, outChan, k, stride, (k-1)/2, stride-1),
	)
	if !convOnly {
		seq.Layers = append(seq.Layers, layers.NewBatchNorm3D(outChan), layers.NewPReLU(0.25))
	}
	if b.cfg.NumResUnits > 0 {
		seq.Layers = append(seq.Layers,
			NewResidualUnit(b.rng, outChan, outChan, 1, b.cfg.KernelSize, 1, isTop))
	}
	return seq
}

// Forward rejects inputs whose spatial dimensions the encoder cannot
// halve cleanly all the way down.
func (u *UNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 5 {
		return nil, fmt.Errorf("unet input must be 5-D [B,C,D,H,W], got %v", x.Shape)
	}
	if x.Shape[1] != u.Cfg.InChannels {
		return nil, fmt.Errorf("unet expects %d input channels, got %d", u.Cfg.InChannels, x.Shape[1])
	}
	for _, d := range x.Shape[2:] {
		if d%u.totalStride != 0 {
			return nil, fmt.Errorf("unet spatial dims %v must be divisible by the total stride %d",
				x.Shape[2:], u.totalStride)
		}
	}
	return u.model.Forward(x)
}

func (u *UNet) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	return u.model.Backward(gradOut)
}

func (u *UNet) Params() []nn.Param {
	return prefixParams("model", u.model.Params())
}

func (u *UNet) Buffers() []nn.Param {
	if st, ok := u.model.(nn.Stateful); ok {
		return prefixParams("model", st.Buffers())
	}
	return nil
}

func (u *UNet) SetTraining(training bool) {
	u.model.SetTraining(training)
}

func prefixParams(prefix string, ps []nn.Param) []nn.Param {
	for i := range ps {
		ps[i].Name = prefix + "." + ps[i].Name
	}
	return ps
}
