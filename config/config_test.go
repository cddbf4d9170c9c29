package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	cfg, err := Merge([]byte(`{"epochs": 12, "learning_rate": 0.01}`), Default())
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Epochs)
	assert.Equal(t, 0.01, cfg.LearningRate)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, []int{16, 32, 64, 128, 256}, cfg.Channels)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestMergeOverridesSlices(t *testing.T) {
	cfg, err := Merge([]byte(`{"channels": [8, 16, 32], "strides": [2, 2], "patch_size": 32}`), Default())
	require.NoError(t, err)

	assert.Equal(t, []int{8, 16, 32}, cfg.Channels)
	assert.Equal(t, []int{2, 2}, cfg.Strides)
	require.NoError(t, cfg.Validate())
}

func TestMergeZeroValueOverride(t *testing.T) {
	// An explicit zero in the file must win over a non-zero default.
	cfg, err := Merge([]byte(`{"log_every": 0, "seed": 0}`), TrainConfig{LogEvery: 5, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.LogEvery)
	assert.Equal(t, int64(0), cfg.Seed)
}

func TestMergeRejectsBadJSON(t *testing.T) {
	_, err := Merge([]byte(`{"epochs": `), Default())
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"epochs": 3, "out_dir": "elsewhere"}`), 0o644))

	cfg, err := Load(path, Default())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, "elsewhere", cfg.OutDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), Default())
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TrainConfig)
	}{
		{"zero epochs", func(c *TrainConfig) { c.Epochs = 0 }},
		{"negative lr", func(c *TrainConfig) { c.LearningRate = -1 }},
		{"unknown optimizer", func(c *TrainConfig) { c.Optimizer = "lbfgs" }},
		{"zero batch", func(c *TrainConfig) { c.BatchSize = 0 }},
		{"single channel", func(c *TrainConfig) { c.Channels = []int{8} }},
		{"stride count", func(c *TrainConfig) { c.Strides = []int{2, 2} }},
		{"patch not divisible", func(c *TrainConfig) { c.PatchSize = 90 }},
		{"split too large", func(c *TrainConfig) { c.TrainCount = 40 }},
		{"zero val interval", func(c *TrainConfig) { c.ValInterval = 0 }},
		{"negative workers", func(c *TrainConfig) { c.Workers = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPrintConfigReportsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	PrintConfig(&buf)

	out := buf.String()
	assert.Contains(t, out, "MONAI version:")
	assert.Contains(t, out, "Go version: go")
	assert.Contains(t, out, "Cores:")
}

func TestJSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/somewhere"

	merged, err := Merge([]byte(cfg.JSON()), TrainConfig{})
	require.NoError(t, err)
	assert.Equal(t, cfg, merged)
}
