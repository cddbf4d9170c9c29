// Package advisor estimates the resource footprint of a UNet
// configuration before a run commits to it: parameter counts, per-level
// activation sizes, convolution FLOPs and a peak-memory figure, plus a
// patch size recommendation for a given memory budget.
package advisor

import (
	"fmt"
	"io"
	"time"

	"github.com/AmeerHamza111/MONAI/networks"
)

// LayerCost aggregates one level unit of the U: its parameters, the
// running statistics it buffers, the convolution FLOPs of one forward
// pass over one sample, and the activation values it leaves cached for
// the backward pass.
type LayerCost struct {
	Name      string
	Params    int
	Buffers   int
	FLOPs     float64
	ActValues int
}

// Plan is the full estimate for one (config, patch, batch) choice.
// ForwardFLOPs and BackwardFLOPs cover a whole batch; the memory
// figures assume float64 storage and Adam's two moment slots.
type Plan struct {
	PatchSize int
	BatchSize int

	Params  int
	Buffers int
	Layers  []LayerCost

	ForwardFLOPs  float64
	BackwardFLOPs float64

	ParamMB      float64
	ActivationMB float64
	PeakMB       float64
}

// Analyze walks the network the same way the builder assembles it and
// accumulates cost per level unit.
func Analyze(cfg networks.UNetConfig, patch, batch int) (*Plan, error) {
	if cfg.KernelSize == 0 {
		cfg.KernelSize = 3
	}
	if cfg.UpKernelSize == 0 {
		cfg.UpKernelSize = 3
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("plan config: %w", err)
	}
	if batch < 1 {
		return nil, fmt.Errorf("plan batch size must be positive, got %d", batch)
	}
	total := 1
	for _, s := range cfg.Strides {
		total *= s
	}
	if patch < total || patch%total != 0 {
		return nil, fmt.Errorf("plan patch size %d must be a positive multiple of the total stride %d", patch, total)
	}

	p := &Plan{PatchSize: patch, BatchSize: batch}
	p.walk(cfg, cfg.InChannels, cfg.OutChannels, cfg.Channels, cfg.Strides, true, patch, 0)

	var flops float64
	var act int
	for _, lc := range p.Layers {
		p.Params += lc.Params
		p.Buffers += lc.Buffers
		flops += lc.FLOPs
		act += lc.ActValues
	}
	p.ForwardFLOPs = flops * float64(batch)
	p.BackwardFLOPs = 2 * p.ForwardFLOPs

	const bytesPerValue = 8
	// Parameters carry a gradient and two Adam moments each.
	p.ParamMB = float64(4*p.Params+p.Buffers) * bytesPerValue / (1 << 20)
	p.ActivationMB = float64(act*batch) * bytesPerValue / (1 << 20)
	// Backward materializes gradients of roughly the cached activations.
	p.PeakMB = p.ParamMB + 2*p.ActivationMB
	return p, nil
}

// walk mirrors the builder's recursion: a down layer, the nested levels
// behind the skip, then the up layer fed with the concatenated channels.
func (p *Plan) walk(cfg networks.UNetConfig, inChan, outChan int, channels, strides []int, isTop bool, edge, level int) {
	c, s := channels[0], strides[0]
	subEdge := edge / s
	p.addDown(cfg, fmt.Sprintf("down[%d]", level), inChan, c, s, edge)
	var upChan int
	if len(channels) > 2 {
		p.walk(cfg, c, c, channels[1:], strides[1:], false, subEdge, level+1)
		upChan = 2 * c
	} else {
		p.addDown(cfg, "bottom", c, channels[1], 1, subEdge)
		upChan = c + channels[1]
	}
	p.addUp(cfg, fmt.Sprintf("up[%d]", level), upChan, outChan, s, isTop, edge)
}

func (p *Plan) addDown(cfg networks.UNetConfig, name string, inChan, outChan, stride, edge int) {
	outEdge := edge / stride
	lc := LayerCost{Name: fmt.Sprintf("%s %d->%d @%d", name, inChan, outChan, outEdge)}
	if cfg.NumResUnits > 0 {
		lc.addResUnit(cfg.KernelSize, inChan, outChan, stride, cfg.NumResUnits, false, edge)
	} else {
		vox := cube(outEdge)
		lc.addConv(cfg.KernelSize, inChan, outChan, vox)
		lc.addNorm(outChan, vox)
		lc.addAct(outChan * vox)
	}
	p.Layers = append(p.Layers, lc)
}

func (p *Plan) addUp(cfg networks.UNetConfig, name string, inChan, outChan, stride int, isTop bool, edge int) {
	k := cfg.UpKernelSize
	inVox, outVox := cube(edge/stride), cube(edge)
	lc := LayerCost{Name: fmt.Sprintf("%s %d->%d @%d", name, inChan, outChan, edge)}
	lc.Params += inChan*outChan*k*k*k + outChan
	lc.FLOPs += 2 * float64(k*k*k) * float64(inChan) * float64(outChan) * float64(inVox)
	lc.ActValues += outChan * outVox
	if !(isTop && cfg.NumResUnits == 0) {
		lc.addNorm(outChan, outVox)
		lc.addAct(outChan * outVox)
	}
	if cfg.NumResUnits > 0 {
		lc.addResUnit(cfg.KernelSize, outChan, outChan, 1, 1, isTop, edge)
	}
	p.Layers = append(p.Layers, lc)
}

// addResUnit follows the residual unit construction: the first subunit
// applies stride and channel change, later subunits keep both, and a
// projection shortcut appears only when resolution or channels change.
func (lc *LayerCost) addResUnit(k, inChan, outChan, stride, subunits int, lastConvOnly bool, edge int) {
	if subunits < 1 {
		subunits = 1
	}
	vox := cube(edge / stride)
	sc := inChan
	for su := 0; su < subunits; su++ {
		lc.addConv(k, sc, outChan, vox)
		if !(lastConvOnly && su == subunits-1) {
			lc.addNorm(outChan, vox)
			lc.addAct(outChan * vox)
		}
		sc = outChan
	}
	if stride != 1 || inChan != outChan {
		rk := k
		if stride == 1 {
			rk = 1
		}
		lc.addConv(rk, inChan, outChan, vox)
	}
}

func (lc *LayerCost) addConv(k, inChan, outChan, vox int) {
	lc.Params += outChan*inChan*k*k*k + outChan
	lc.FLOPs += 2 * float64(k*k*k) * float64(inChan) * float64(outChan) * float64(vox)
	lc.ActValues += outChan * vox
}

func (lc *LayerCost) addNorm(channels, vox int) {
	lc.Params += 2 * channels
	lc.Buffers += 2 * channels
	lc.FLOPs += 5 * float64(channels) * float64(vox)
	lc.ActValues += channels * vox
}

func (lc *LayerCost) addAct(values int) {
	lc.Params++
	lc.FLOPs += 2 * float64(values)
	lc.ActValues += values
}

func cube(edge int) int {
	return edge * edge * edge
}

// RecommendPatch returns the largest patch size not above maxPatch whose
// peak-memory estimate fits budgetMB, walking candidates down one total
// stride at a time.
func RecommendPatch(cfg networks.UNetConfig, batch int, budgetMB float64, maxPatch int) (int, error) {
	if cfg.KernelSize == 0 {
		cfg.KernelSize = 3
	}
	if cfg.UpKernelSize == 0 {
		cfg.UpKernelSize = 3
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("recommend config: %w", err)
	}
	total := 1
	for _, s := range cfg.Strides {
		total *= s
	}
	for patch := maxPatch - maxPatch%total; patch >= total; patch -= total {
		plan, err := Analyze(cfg, patch, batch)
		if err != nil {
			return 0, err
		}
		if plan.PeakMB <= budgetMB {
			return patch, nil
		}
	}
	return 0, fmt.Errorf("no patch size up to %d fits %.0f MB at batch %d", maxPatch, budgetMB, batch)
}

// EstimateStep converts the plan's FLOP totals into a wall-time guess
// for one training step at the given sustained rate in GFLOP/s.
func (p *Plan) EstimateStep(gflops float64) time.Duration {
	if gflops <= 0 {
		return 0
	}
	secs := (p.ForwardFLOPs + p.BackwardFLOPs) / (gflops * 1e9)
	return time.Duration(secs * float64(time.Second))
}

// Print writes the plan report.
func (p *Plan) Print(w io.Writer) {
	fmt.Fprintln(w, "----- Network Plan -----")
	fmt.Fprintf(w, "Patch size: %d, Batch size: %d\n", p.PatchSize, p.BatchSize)
	fmt.Fprintf(w, "Parameters: %d (plus %d buffer values)\n", p.Params, p.Buffers)
	fmt.Fprintf(w, "Forward: %.2f GFLOP/batch, Backward: %.2f GFLOP/batch\n",
		p.ForwardFLOPs/1e9, p.BackwardFLOPs/1e9)
	fmt.Fprintln(w, "----- Layer Breakdown -----")
	for _, lc := range p.Layers {
		fmt.Fprintf(w, "%-22s %10d params %10.2f GFLOP %9.1f MB\n",
			lc.Name, lc.Params, lc.FLOPs/1e9,
			float64(lc.ActValues*p.BatchSize)*8/(1<<20))
	}
	fmt.Fprintln(w, "----- Memory Estimate -----")
	fmt.Fprintf(w, "Parameters, gradients and Adam moments: %.1f MB\n", p.ParamMB)
	fmt.Fprintf(w, "Cached activations per batch: %.1f MB\n", p.ActivationMB)
	fmt.Fprintf(w, "Peak estimate: %.1f MB\n", p.PeakMB)
}
