// Package config holds the training configuration, its JSON file
// loading with partial overrides, and the environment report printed at
// startup.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/klauspost/cpuid/v2"
)

// TrainConfig carries every knob of a training run. JSON files may set
// any subset; unset fields keep their defaults.
type TrainConfig struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"`
	Momentum     float64 `json:"momentum"`

	BatchSize    int `json:"batch_size"`
	ValBatchSize int `json:"val_batch_size"`
	PatchSize    int `json:"patch_size"`
	Workers      int `json:"workers"`

	Channels []int `json:"channels"`
	Strides  []int `json:"strides"`
	ResUnits int   `json:"res_units"`

	NumSamples int `json:"num_samples"`
	TrainCount int `json:"train_count"`
	ValCount   int `json:"val_count"`

	ValInterval     int `json:"val_interval"`
	KeepCheckpoints int `json:"keep_checkpoints"`
	LogEvery        int `json:"log_every"`
	Patience        int `json:"patience"`

	Seed    int64  `json:"seed"`
	DataDir string `json:"data_dir"`
	OutDir  string `json:"out_dir"`
	RunDB   string `json:"run_db"`
	Monitor string `json:"monitor"`
}

// Default returns the tutorial configuration: 50 synthetic pairs split
// 20 train / 20 val, a five-level UNet on 96-voxel patches, Adam at
// 1e-3, validation every second epoch.
func Default() TrainConfig {
	return TrainConfig{
		Epochs:          5,
		LearningRate:    1e-3,
		Optimizer:       "adam",
		Momentum:        0.9,
		BatchSize:       4,
		ValBatchSize:    2,
		PatchSize:       96,
		Workers:         0,
		Channels:        []int{16, 32, 64, 128, 256},
		Strides:         []int{2, 2, 2, 2},
		ResUnits:        2,
		NumSamples:      50,
		TrainCount:      20,
		ValCount:        20,
		ValInterval:     2,
		KeepCheckpoints: 10,
		LogEvery:        0,
		Patience:        0,
		Seed:            42,
		OutDir:          "runs",
	}
}

// Load reads a JSON file over base: only the keys present in the file
// replace base values.
func Load(path string, base TrainConfig) (TrainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	return Merge(raw, base)
}

// Merge applies a JSON fragment over base. Keys absent from the
// fragment keep their base values.
func Merge(raw []byte, base TrainConfig) (TrainConfig, error) {
	// Pointer fields distinguish "absent" from "zero".
	var patch struct {
		Epochs       *int     `json:"epochs"`
		LearningRate *float64 `json:"learning_rate"`
		Optimizer    *string  `json:"optimizer"`
		Momentum     *float64 `json:"momentum"`

		BatchSize    *int `json:"batch_size"`
		ValBatchSize *int `json:"val_batch_size"`
		PatchSize    *int `json:"patch_size"`
		Workers      *int `json:"workers"`

		Channels *[]int `json:"channels"`
		Strides  *[]int `json:"strides"`
		ResUnits *int   `json:"res_units"`

		NumSamples *int `json:"num_samples"`
		TrainCount *int `json:"train_count"`
		ValCount   *int `json:"val_count"`

		ValInterval     *int `json:"val_interval"`
		KeepCheckpoints *int `json:"keep_checkpoints"`
		LogEvery        *int `json:"log_every"`
		Patience        *int `json:"patience"`

		Seed    *int64  `json:"seed"`
		DataDir *string `json:"data_dir"`
		OutDir  *string `json:"out_dir"`
		RunDB   *string `json:"run_db"`
		Monitor *string `json:"monitor"`
	}
	if err := json.Unmarshal(raw, &patch); err != nil {
		return base, fmt.Errorf("parse config: %w", err)
	}

	out := base
	if patch.Epochs != nil {
		out.Epochs = *patch.Epochs
	}
	if patch.LearningRate != nil {
		out.LearningRate = *patch.LearningRate
	}
	if patch.Optimizer != nil {
		out.Optimizer = *patch.Optimizer
	}
	if patch.Momentum != nil {
		out.Momentum = *patch.Momentum
	}
	if patch.BatchSize != nil {
		out.BatchSize = *patch.BatchSize
	}
	if patch.ValBatchSize != nil {
		out.ValBatchSize = *patch.ValBatchSize
	}
	if patch.PatchSize != nil {
		out.PatchSize = *patch.PatchSize
	}
	if patch.Workers != nil {
		out.Workers = *patch.Workers
	}
	if patch.Channels != nil {
		out.Channels = append([]int(nil), (*patch.Channels)...)
	}
	if patch.Strides != nil {
		out.Strides = append([]int(nil), (*patch.Strides)...)
	}
	if patch.ResUnits != nil {
		out.ResUnits = *patch.ResUnits
	}
	if patch.NumSamples != nil {
		out.NumSamples = *patch.NumSamples
	}
	if patch.TrainCount != nil {
		out.TrainCount = *patch.TrainCount
	}
	if patch.ValCount != nil {
		out.ValCount = *patch.ValCount
	}
	if patch.ValInterval != nil {
		out.ValInterval = *patch.ValInterval
	}
	if patch.KeepCheckpoints != nil {
		out.KeepCheckpoints = *patch.KeepCheckpoints
	}
	if patch.LogEvery != nil {
		out.LogEvery = *patch.LogEvery
	}
	if patch.Patience != nil {
		out.Patience = *patch.Patience
	}
	if patch.Seed != nil {
		out.Seed = *patch.Seed
	}
	if patch.DataDir != nil {
		out.DataDir = *patch.DataDir
	}
	if patch.OutDir != nil {
		out.OutDir = *patch.OutDir
	}
	if patch.RunDB != nil {
		out.RunDB = *patch.RunDB
	}
	if patch.Monitor != nil {
		out.Monitor = *patch.Monitor
	}
	return out, nil
}

// Validate rejects configurations the pipeline cannot run.
func (c *TrainConfig) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}
	if c.Optimizer != "adam" && c.Optimizer != "sgd" {
		return fmt.Errorf("optimizer must be 'adam' or 'sgd'")
	}
	if c.BatchSize <= 0 || c.ValBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if len(c.Channels) < 2 {
		return fmt.Errorf("channels must list at least 2 levels")
	}
	if len(c.Strides) != len(c.Channels)-1 {
		return fmt.Errorf("strides must have one entry fewer than channels")
	}
	total := 1
	for _, s := range c.Strides {
		if s <= 0 {
			return fmt.Errorf("strides must be positive")
		}
		total *= s
	}
	if c.PatchSize <= 0 || c.PatchSize%total != 0 {
		return fmt.Errorf("patch size must be a positive multiple of the total stride %d", total)
	}
	if c.ResUnits < 0 {
		return fmt.Errorf("res units must not be negative")
	}
	if c.NumSamples <= 0 {
		return fmt.Errorf("num samples must be positive")
	}
	if c.TrainCount <= 0 || c.ValCount <= 0 || c.TrainCount+c.ValCount > c.NumSamples {
		return fmt.Errorf("train %d + val %d must fit in %d samples", c.TrainCount, c.ValCount, c.NumSamples)
	}
	if c.ValInterval <= 0 {
		return fmt.Errorf("val interval must be positive")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

// JSON renders the full effective configuration.
func (c TrainConfig) JSON() string {
	raw, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// PrintConfig writes the runtime environment report: module version,
// toolchain and the CPU the run executes on.
func PrintConfig(w io.Writer) {
	version := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Fprintf(w, "MONAI version: %s\n", version)
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "CPU: %s\n", cpuid.CPU.BrandName)
	fmt.Fprintf(w, "Cores: %d physical, %d logical\n", cpuid.CPU.PhysicalCores, runtime.NumCPU())
	fmt.Fprintf(w, "Vector support: AVX2=%v AVX512=%v\n",
		cpuid.CPU.Supports(cpuid.AVX2),
		cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ))
}
