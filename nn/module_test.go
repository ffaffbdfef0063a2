package nn

import (
	"math"
	"testing"

	"github.com/mtoivainen/latentreach/tensor"
)

func TestLinearForward(t *testing.T) {
	linear, err := NewLinear(2, 3, true)
	if err != nil {
		t.Fatalf("Failed to create linear layer: %v", err)
	}

	params := linear.Parameters()
	if len(params) != 2 {
		t.Fatalf("Expected 2 parameters (weight, bias), got %d", len(params))
	}

	// Fix the parameters so the output is predictable
	if err := params[0].SetData([]float32{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Failed to set weights: %v", err)
	}
	if err := params[1].SetData([]float32{0.5, 0.5, 0.5}); err != nil {
		t.Fatalf("Failed to set bias: %v", err)
	}

	input, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, []float32{1, 2})
	output, err := linear.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	if output.Shape[0] != 1 || output.Shape[1] != 3 {
		t.Fatalf("Expected output shape [1 3], got %v", output.Shape)
	}

	// xW + b = [1*1+2*4, 1*2+2*5, 1*3+2*6] + 0.5
	expected := []float32{9.5, 12.5, 15.5}
	outputData, _ := output.GetFloat32Data()
	for i, want := range expected {
		if math.Abs(float64(outputData[i]-want)) > 1e-6 {
			t.Errorf("Output[%d]: expected %f, got %f", i, want, outputData[i])
		}
	}
}

func TestLinearNoBias(t *testing.T) {
	linear, err := NewLinear(4, 2, false)
	if err != nil {
		t.Fatalf("Failed to create linear layer: %v", err)
	}
	if len(linear.Parameters()) != 1 {
		t.Errorf("Expected 1 parameter without bias, got %d", len(linear.Parameters()))
	}
}

func TestLinearInputValidation(t *testing.T) {
	linear, err := NewLinear(4, 2, true)
	if err != nil {
		t.Fatalf("Failed to create linear layer: %v", err)
	}

	t.Run("WrongRank", func(t *testing.T) {
		input, _ := tensor.NewTensor([]int{4}, tensor.Float32, []float32{1, 2, 3, 4})
		if _, err := linear.Forward(input); err == nil {
			t.Error("Expected error for 1D input")
		}
	})

	t.Run("WrongWidth", func(t *testing.T) {
		input, _ := tensor.NewTensor([]int{1, 3}, tensor.Float32, []float32{1, 2, 3})
		if _, err := linear.Forward(input); err == nil {
			t.Error("Expected error for mismatched input size")
		}
	})
}

func TestLinearInitDeterminism(t *testing.T) {
	SetRandomSeed(42)
	a, err := NewLinear(8, 4, true)
	if err != nil {
		t.Fatalf("Failed to create linear layer: %v", err)
	}

	SetRandomSeed(42)
	b, err := NewLinear(8, 4, true)
	if err != nil {
		t.Fatalf("Failed to create linear layer: %v", err)
	}

	aData, _ := a.Parameters()[0].GetFloat32Data()
	bData, _ := b.Parameters()[0].GetFloat32Data()
	for i := range aData {
		if aData[i] != bData[i] {
			t.Fatalf("Expected identical weights under the same seed, differ at %d", i)
		}
	}

	// Xavier bound for [8, 4]
	bound := float32(math.Sqrt(6.0 / 12.0))
	for i, w := range aData {
		if w < -bound || w > bound {
			t.Errorf("Weight %d = %f outside Xavier bound %f", i, w, bound)
		}
	}
}

func TestActivationModules(t *testing.T) {
	input, _ := tensor.NewTensor([]int{1, 3}, tensor.Float32, []float32{-1, 0, 2})

	t.Run("ReLU", func(t *testing.T) {
		output, err := NewReLU().Forward(input)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		data, _ := output.GetFloat32Data()
		expected := []float32{0, 0, 2}
		for i, want := range expected {
			if data[i] != want {
				t.Errorf("ReLU[%d]: expected %f, got %f", i, want, data[i])
			}
		}
	})

	t.Run("Sigmoid", func(t *testing.T) {
		output, err := NewSigmoid().Forward(input)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		data, _ := output.GetFloat32Data()
		if math.Abs(float64(data[1])-0.5) > 1e-6 {
			t.Errorf("Expected sigmoid(0) = 0.5, got %f", data[1])
		}
	})

	t.Run("Tanh", func(t *testing.T) {
		output, err := NewTanh().Forward(input)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		data, _ := output.GetFloat32Data()
		if math.Abs(float64(data[1])) > 1e-6 {
			t.Errorf("Expected tanh(0) = 0, got %f", data[1])
		}
		if math.Abs(float64(data[2])-0.964028) > 1e-5 {
			t.Errorf("Expected tanh(2) = 0.964028, got %f", data[2])
		}
	})
}

func TestSequential(t *testing.T) {
	SetRandomSeed(7)

	fc1, err := NewLinear(4, 8, true)
	if err != nil {
		t.Fatalf("Failed to create layer: %v", err)
	}
	fc2, err := NewLinear(8, 2, true)
	if err != nil {
		t.Fatalf("Failed to create layer: %v", err)
	}

	model := NewSequential(fc1, NewReLU(), fc2)

	if len(model.Parameters()) != 4 {
		t.Errorf("Expected 4 parameters, got %d", len(model.Parameters()))
	}

	input, _ := tensor.NewTensor([]int{3, 4}, tensor.Float32, make([]float32, 12))
	output, err := model.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if output.Shape[0] != 3 || output.Shape[1] != 2 {
		t.Errorf("Expected output shape [3 2], got %v", output.Shape)
	}

	// Mode changes cascade to children
	model.Eval()
	if fc1.IsTraining() || fc2.IsTraining() || model.IsTraining() {
		t.Error("Expected eval mode to cascade to all modules")
	}
	model.Train()
	if !fc1.IsTraining() || !model.IsTraining() {
		t.Error("Expected train mode to cascade to all modules")
	}
}

func TestSequentialForwardError(t *testing.T) {
	fc, err := NewLinear(4, 2, true)
	if err != nil {
		t.Fatalf("Failed to create layer: %v", err)
	}
	model := NewSequential(fc)

	input, _ := tensor.NewTensor([]int{1, 3}, tensor.Float32, []float32{1, 2, 3})
	if _, err := model.Forward(input); err == nil {
		t.Error("Expected error to propagate from failing module")
	}
}

func TestFlattenModule(t *testing.T) {
	flatten := NewFlatten()

	input, _ := tensor.NewTensor([]int{2, 3, 4}, tensor.Float32, make([]float32, 24))
	output, err := flatten.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if output.Shape[0] != 2 || output.Shape[1] != 12 {
		t.Errorf("Expected output shape [2 12], got %v", output.Shape)
	}
}
