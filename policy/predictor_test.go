package policy

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/tensor"
)

func TestPredictorForward(t *testing.T) {
	nn.SetRandomSeed(42)

	pred, err := NewPredictor(10, 5, 0)
	if err != nil {
		t.Fatalf("Failed to create predictor: %v", err)
	}

	if pred.InputDim() != 10 {
		t.Errorf("Expected input dim 10, got %d", pred.InputDim())
	}
	if pred.OutputDim() != 5 {
		t.Errorf("Expected output dim 5, got %d", pred.OutputDim())
	}
	if len(pred.Parameters()) != 4 {
		t.Errorf("Expected 4 parameter tensors, got %d", len(pred.Parameters()))
	}

	// Dense(10,64) + bias + Dense(64,5) + bias
	wantParams := int64(10*64 + 64 + 64*5 + 5)
	if pred.Spec().TotalParameters != wantParams {
		t.Errorf("Expected %d total parameters, got %d", wantParams, pred.Spec().TotalParameters)
	}

	input, _ := tensor.NewTensor([]int{3, 10}, tensor.Float32, make([]float32, 30))
	output, err := pred.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if output.Shape[0] != 3 || output.Shape[1] != 5 {
		t.Errorf("Expected output shape [3 5], got %v", output.Shape)
	}
}

func TestPredictorValidation(t *testing.T) {
	if _, err := NewPredictor(0, 5, 64); err == nil {
		t.Error("Expected error for zero input width")
	}
	if _, err := NewPredictor(10, -1, 64); err == nil {
		t.Error("Expected error for negative output width")
	}
}

func TestPredictorCheckpointRoundtrip(t *testing.T) {
	nn.SetRandomSeed(7)

	pred, err := NewPredictor(4, 3, 8)
	if err != nil {
		t.Fatalf("Failed to create predictor: %v", err)
	}

	weights, err := checkpoints.ExtractWeights(pred.Parameters(), pred.Spec())
	if err != nil {
		t.Fatalf("Failed to extract weights: %v", err)
	}
	ckpt := &checkpoints.Checkpoint{ModelSpec: pred.Spec(), Weights: weights}

	path := filepath.Join(t.TempDir(), "policy_best.json")
	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatJSON)
	if err := saver.SaveCheckpoint(ckpt, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	loaded, err := LoadPredictor(path)
	if err != nil {
		t.Fatalf("LoadPredictor failed: %v", err)
	}

	if loaded.InputDim() != 4 || loaded.OutputDim() != 3 {
		t.Errorf("Expected dims (4, 3), got (%d, %d)", loaded.InputDim(), loaded.OutputDim())
	}

	input, _ := tensor.NewTensor([]int{2, 4}, tensor.Float32, []float32{
		0.1, -0.2, 0.3, 0.4,
		1.0, 0.5, -0.5, 0.2,
	})

	want, err := pred.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	got, err := loaded.Forward(input)
	if err != nil {
		t.Fatalf("Forward on loaded predictor failed: %v", err)
	}

	wantData, _ := want.GetFloat32Data()
	gotData, _ := got.GetFloat32Data()
	for i := range wantData {
		if math.Abs(float64(wantData[i]-gotData[i])) > 1e-6 {
			t.Errorf("Output[%d]: expected %f, got %f", i, wantData[i], gotData[i])
		}
	}
}

func TestLoadPredictorMissingFile(t *testing.T) {
	if _, err := LoadPredictor(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing checkpoint")
	}
}
