package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mtoivainen/latentreach/layers"
	"github.com/mtoivainen/latentreach/tensor"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatGob
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatGob:
		return "Gob"
	default:
		return "Unknown"
	}
}

// FormatForPath picks the checkpoint format from a file extension.
// Unknown extensions default to JSON.
func FormatForPath(path string) CheckpointFormat {
	if strings.HasSuffix(path, ".gob") {
		return FormatGob
	}
	return FormatJSON
}

// Extension returns the file extension for the format
func (cf CheckpointFormat) Extension() string {
	switch cf {
	case FormatGob:
		return "gob"
	default:
		return "json"
	}
}

// ParseFormat converts a format name ("json" or "gob") to a CheckpointFormat
func ParseFormat(name string) (CheckpointFormat, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "gob":
		return FormatGob, nil
	default:
		return FormatJSON, fmt.Errorf("unknown checkpoint format %q (want json or gob)", name)
	}
}

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	// Model architecture and weights
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias"
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float32 `json:"learning_rate"`
	BestLoss     float32 `json:"best_loss"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (momentum, variance, etc.)
type OptimizerState struct {
	Type       string                 `json:"type"` // "SGD", "Adam", etc.
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (momentum, variance, etc.)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "m", "v", etc.
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatGob:
		return cs.saveGob(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatGob:
		return cs.loadGob(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "latentreach"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ") // Pretty print JSON

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}

// ExtractWeights extracts parameter data from model tensors in the layer
// order given by the model spec
func ExtractWeights(parameters []*tensor.Tensor, modelSpec *layers.ModelSpec) ([]WeightTensor, error) {
	var weights []WeightTensor

	paramIndex := 0
	for _, layerSpec := range modelSpec.Layers {
		layerName := layerSpec.Name

		switch layerSpec.Type {
		case layers.Dense:
			// Dense layer: weight + optional bias
			if paramIndex >= len(parameters) {
				return nil, fmt.Errorf("insufficient tensors for dense layer %s", layerName)
			}

			weightTensor := parameters[paramIndex]
			weightData, err := weightTensor.GetFloat32Data()
			if err != nil {
				return nil, fmt.Errorf("failed to extract weight data for layer %s: %v", layerName, err)
			}

			weights = append(weights, WeightTensor{
				Name:  fmt.Sprintf("%s.weight", layerName),
				Shape: append([]int{}, weightTensor.Shape...),
				Data:  append([]float32{}, weightData...),
				Layer: layerName,
				Type:  "weight",
			})
			paramIndex++

			if layers.GetBoolParam(layerSpec.Parameters, "use_bias", true) {
				if paramIndex >= len(parameters) {
					return nil, fmt.Errorf("insufficient tensors for dense layer bias %s", layerName)
				}

				biasTensor := parameters[paramIndex]
				biasData, err := biasTensor.GetFloat32Data()
				if err != nil {
					return nil, fmt.Errorf("failed to extract bias data for layer %s: %v", layerName, err)
				}

				weights = append(weights, WeightTensor{
					Name:  fmt.Sprintf("%s.bias", layerName),
					Shape: append([]int{}, biasTensor.Shape...),
					Data:  append([]float32{}, biasData...),
					Layer: layerName,
					Type:  "bias",
				})
				paramIndex++
			}

		case layers.ReLU, layers.Sigmoid, layers.Tanh:
			// Activation layers have no parameters
			continue

		default:
			return nil, fmt.Errorf("unsupported layer type for weight extraction: %s", layerSpec.Type.String())
		}
	}

	if paramIndex != len(parameters) {
		return nil, fmt.Errorf("parameter count mismatch: spec consumed %d of %d tensors", paramIndex, len(parameters))
	}

	return weights, nil
}

// LoadWeights loads weight data back into model tensors. Tensors must be
// in the same order the weights were extracted in.
func LoadWeights(weights []WeightTensor, parameters []*tensor.Tensor) error {
	if len(weights) != len(parameters) {
		return fmt.Errorf("weight count mismatch: %d weights, %d tensors", len(weights), len(parameters))
	}

	for i, param := range parameters {
		weight := weights[i]

		if len(param.Shape) != len(weight.Shape) {
			return fmt.Errorf("shape mismatch for weight %s: tensor %v vs weight %v",
				weight.Name, param.Shape, weight.Shape)
		}

		for j, dim := range param.Shape {
			if dim != weight.Shape[j] {
				return fmt.Errorf("dimension mismatch for weight %s at index %d: tensor %d vs weight %d",
					weight.Name, j, dim, weight.Shape[j])
			}
		}

		if err := param.SetData(weight.Data); err != nil {
			return fmt.Errorf("failed to copy weight data for %s: %v", weight.Name, err)
		}
	}

	return nil
}
