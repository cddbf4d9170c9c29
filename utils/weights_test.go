package utils

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/nn/layers"
	"github.com/AmeerHamza111/MONAI/tensor"
)

func TestTensorToWeightData(t *testing.T) {
	ten := tensor.New(2, 3)
	for i := range ten.Data {
		ten.Data[i] = float64(i) * 0.5
	}

	wd := TensorToWeightData("test_weight", ten)

	if wd.Name != "test_weight" {
		t.Errorf("Name = %s, want test_weight", wd.Name)
	}
	if len(wd.Shape) != 2 || wd.Shape[0] != 2 || wd.Shape[1] != 3 {
		t.Errorf("Shape = %v, want [2, 3]", wd.Shape)
	}
	for i, v := range wd.Data {
		expected := float64(i) * 0.5
		if v != expected {
			t.Errorf("Data[%d] = %f, want %f", i, v, expected)
		}
	}

	// The copy must be independent of the source tensor.
	ten.Data[0] = 99
	if wd.Data[0] == 99 {
		t.Error("weight data aliases the source tensor")
	}
}

func TestWeightDataToTensor(t *testing.T) {
	wd := &WeightData{
		Name:  "test",
		Shape: []int{3, 4},
		Data:  make([]float64, 12),
	}
	for i := range wd.Data {
		wd.Data[i] = float64(i)
	}

	ten := WeightDataToTensor(wd)

	if len(ten.Shape) != 2 || ten.Shape[0] != 3 || ten.Shape[1] != 4 {
		t.Errorf("Shape = %v, want [3, 4]", ten.Shape)
	}
	for i, v := range ten.Data {
		if v != float64(i) {
			t.Errorf("Data[%d] = %f, want %f", i, v, float64(i))
		}
	}
}

func testNet(seed int64) nn.Layer {
	rng := rand.New(rand.NewSource(seed))
	return nn.NewSequential(
		layers.NewConv3D(rng, 1, 2, 3, 1, 1),
		layers.NewBatchNorm3D(2),
	)
}

func TestExportApplyRoundTrip(t *testing.T) {
	src := testNet(7)
	weights := ExportWeights(src)

	if weights.Version != WeightsVersion {
		t.Errorf("Version = %s, want %s", weights.Version, WeightsVersion)
	}
	if len(weights.Tensors) != len(nn.StateTensors(src)) {
		t.Fatalf("exported %d tensors, want %d", len(weights.Tensors), len(nn.StateTensors(src)))
	}

	dst := testNet(99)
	if err := ApplyWeights(dst, weights); err != nil {
		t.Fatalf("ApplyWeights: %v", err)
	}
	srcState := nn.StateTensors(src)
	dstState := nn.StateTensors(dst)
	for i := range srcState {
		for j, v := range srcState[i].Value.Data {
			if dstState[i].Value.Data[j] != v {
				t.Fatalf("tensor %s value %d differs after apply", srcState[i].Name, j)
			}
		}
	}
}

func TestApplyWeightsRejectsMismatch(t *testing.T) {
	weights := ExportWeights(testNet(7))

	rng := rand.New(rand.NewSource(1))
	other := nn.NewSequential(layers.NewConv3D(rng, 1, 4, 3, 1, 1), layers.NewBatchNorm3D(4))
	if err := ApplyWeights(other, weights); err == nil {
		t.Fatal("expected shape mismatch error")
	}

	// A missing tensor must also be rejected.
	for name := range weights.Tensors {
		broken := &ModelWeights{Version: weights.Version, Tensors: map[string]*WeightData{}}
		for k, v := range weights.Tensors {
			if k != name {
				broken.Tensors[k] = v
			}
		}
		broken.Tensors["bogus"] = &WeightData{Name: "bogus", Shape: []int{1}, Data: []float64{0}}
		if err := ApplyWeights(testNet(7), broken); err == nil {
			t.Fatalf("expected missing tensor error for %s", name)
		}
		break
	}
}

func TestSaveLoadWeights(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "weights_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	weightsFile := filepath.Join(tmpDir, "test_weights.json")

	weights := ExportWeights(testNet(7))
	if err := SaveWeights(weightsFile, weights); err != nil {
		t.Fatalf("SaveWeights: %v", err)
	}

	loaded, err := LoadWeights(weightsFile)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if loaded.Version != weights.Version {
		t.Errorf("Version = %s, want %s", loaded.Version, weights.Version)
	}
	if len(loaded.Tensors) != len(weights.Tensors) {
		t.Fatalf("loaded %d tensors, want %d", len(loaded.Tensors), len(weights.Tensors))
	}
	for name, wd := range weights.Tensors {
		got, ok := loaded.Tensors[name]
		if !ok {
			t.Fatalf("missing tensor %s after load", name)
		}
		for i, v := range wd.Data {
			if got.Data[i] != v {
				t.Fatalf("tensor %s value %d differs after load", name, i)
			}
		}
	}

	if _, err := LoadWeights(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
