package nn

import (
	"math"
	"testing"

	"github.com/mtoivainen/latentreach/tensor"
)

func TestMSELossForward(t *testing.T) {
	predicted, err := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Failed to create predicted tensor: %v", err)
	}
	target, err := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 1, 2, 2})
	if err != nil {
		t.Fatalf("Failed to create target tensor: %v", err)
	}

	t.Run("MeanReduction", func(t *testing.T) {
		criterion := NewMSELoss("mean")
		loss, err := criterion.Forward(predicted, target)
		if err != nil {
			t.Fatalf("Failed to compute loss: %v", err)
		}

		// diff = [0, 1, 1, 2], squared sum = 6, mean = 1.5
		value, err := loss.Item()
		if err != nil {
			t.Fatalf("Failed to get loss value: %v", err)
		}
		if math.Abs(float64(value.(float32))-1.5) > 1e-6 {
			t.Errorf("Expected loss 1.5, got %f", value.(float32))
		}
	})

	t.Run("SumReduction", func(t *testing.T) {
		criterion := NewMSELoss("sum")
		loss, err := criterion.Forward(predicted, target)
		if err != nil {
			t.Fatalf("Failed to compute loss: %v", err)
		}

		value, err := loss.Item()
		if err != nil {
			t.Fatalf("Failed to get loss value: %v", err)
		}
		if math.Abs(float64(value.(float32))-6.0) > 1e-6 {
			t.Errorf("Expected loss 6.0, got %f", value.(float32))
		}
	})

	t.Run("PerfectPrediction", func(t *testing.T) {
		criterion := NewMSELoss("")
		loss, err := criterion.Forward(target, target)
		if err != nil {
			t.Fatalf("Failed to compute loss: %v", err)
		}

		value, _ := loss.Item()
		if value.(float32) != 0 {
			t.Errorf("Expected zero loss for perfect prediction, got %f", value.(float32))
		}
	})
}

func TestMSELossBackward(t *testing.T) {
	predicted, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4})
	target, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 1, 2, 2})

	t.Run("MeanReduction", func(t *testing.T) {
		criterion := NewMSELoss("mean")
		grad, err := criterion.Backward(predicted, target)
		if err != nil {
			t.Fatalf("Failed to compute gradient: %v", err)
		}

		// grad = 2 * diff / N = 2 * [0, 1, 1, 2] / 4
		expected := []float32{0, 0.5, 0.5, 1.0}
		gradData, err := grad.GetFloat32Data()
		if err != nil {
			t.Fatalf("Failed to read gradient: %v", err)
		}
		for i, want := range expected {
			if math.Abs(float64(gradData[i]-want)) > 1e-6 {
				t.Errorf("Gradient[%d]: expected %f, got %f", i, want, gradData[i])
			}
		}
	})

	t.Run("SumReduction", func(t *testing.T) {
		criterion := NewMSELoss("sum")
		grad, err := criterion.Backward(predicted, target)
		if err != nil {
			t.Fatalf("Failed to compute gradient: %v", err)
		}

		expected := []float32{0, 2, 2, 4}
		gradData, _ := grad.GetFloat32Data()
		for i, want := range expected {
			if math.Abs(float64(gradData[i]-want)) > 1e-6 {
				t.Errorf("Gradient[%d]: expected %f, got %f", i, want, gradData[i])
			}
		}
	})
}

func TestMSELossShapeMismatch(t *testing.T) {
	predicted, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4})
	target, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32, []float32{1, 1, 2, 2, 3, 3})

	criterion := NewMSELoss("mean")
	if _, err := criterion.Forward(predicted, target); err == nil {
		t.Error("Expected error for shape mismatch")
	}
}

func TestMSELossGradientSeedsBackward(t *testing.T) {
	// End to end: y = xW, loss = MSE(y, target), gradient reaches W
	x, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, []float32{1, 2})
	w, _ := tensor.NewTensor([]int{2, 1}, tensor.Float32, []float32{0.5, 0.5})
	w.SetRequiresGrad(true)
	target, _ := tensor.NewTensor([]int{1, 1}, tensor.Float32, []float32{3})

	y, err := tensor.MatMulAutograd(x, w)
	if err != nil {
		t.Fatalf("Failed to compute forward: %v", err)
	}

	criterion := NewMSELoss("mean")
	seed, err := criterion.Backward(y, target)
	if err != nil {
		t.Fatalf("Failed to compute loss gradient: %v", err)
	}
	if err := y.Backward(seed); err != nil {
		t.Fatalf("Failed to backpropagate: %v", err)
	}

	// y = 1.5, dL/dy = 2*(1.5-3)/1 = -3, dL/dW = x^T * dL/dy = [-3, -6]
	if w.Grad() == nil {
		t.Fatal("Expected gradient on W")
	}
	gradData, _ := w.Grad().GetFloat32Data()
	if math.Abs(float64(gradData[0]+3)) > 1e-6 || math.Abs(float64(gradData[1]+6)) > 1e-6 {
		t.Errorf("Expected W gradient [-3, -6], got %v", gradData)
	}
}
