package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AmeerHamza111/MONAI/nn"
	"github.com/AmeerHamza111/MONAI/tensor"
)

// WeightsVersion tags exported weight files.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for a single tensor
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model, keyed by tensor name.
// Batch-norm running statistics are included alongside the learnable
// parameters so an exported model evaluates identically after import.
type ModelWeights struct {
	Version string                 `json:"version"`
	Tensors map[string]*WeightData `json:"tensors"`
}

// ExportWeights collects every state tensor of the network into a
// serializable form.
func ExportWeights(net nn.Layer) *ModelWeights {
	weights := &ModelWeights{
		Version: WeightsVersion,
		Tensors: make(map[string]*WeightData),
	}
	for _, p := range nn.StateTensors(net) {
		weights.Tensors[p.Name] = TensorToWeightData(p.Name, p.Value)
	}
	return weights
}

// ApplyWeights copies exported weights back into the network. Every
// network tensor must be present in the file with a matching shape;
// nothing is written before the full check passes.
func ApplyWeights(net nn.Layer, weights *ModelWeights) error {
	state := nn.StateTensors(net)
	if len(state) != len(weights.Tensors) {
		return fmt.Errorf("weights hold %d tensors, network has %d", len(weights.Tensors), len(state))
	}
	for _, p := range state {
		wd, ok := weights.Tensors[p.Name]
		if !ok {
			return fmt.Errorf("weights missing tensor %q", p.Name)
		}
		if !sameShape(wd.Shape, p.Value.Shape) {
			return fmt.Errorf("tensor %q shape %v does not match network shape %v", p.Name, wd.Shape, p.Value.Shape)
		}
		if len(wd.Data) != len(p.Value.Data) {
			return fmt.Errorf("tensor %q has %d values, want %d", p.Name, len(wd.Data), len(p.Value.Data))
		}
	}
	for _, p := range state {
		copy(p.Value.Data, weights.Tensors[p.Name].Data)
	}
	return nil
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
