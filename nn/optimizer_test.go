package nn

import (
	"math"
	"testing"

	"github.com/mtoivainen/latentreach/tensor"
)

// backwardInto computes W.grad = c by differentiating W*c with a ones seed.
func backwardInto(t *testing.T, param, grad *tensor.Tensor) {
	t.Helper()

	out, err := tensor.MulAutograd(param, grad)
	if err != nil {
		t.Fatalf("Failed to build gradient graph: %v", err)
	}
	seed, err := tensor.Ones(out.Shape, out.DType)
	if err != nil {
		t.Fatalf("Failed to create seed: %v", err)
	}
	if err := out.Backward(seed); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
}

func TestSGDStep(t *testing.T) {
	param, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 2})
	param.SetRequiresGrad(true)
	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{3, 4})

	sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0, 0, 0, false)

	backwardInto(t, param, grad)
	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// param = param - lr * grad
	expected := []float32{0.7, 1.6}
	data, _ := param.GetFloat32Data()
	for i, want := range expected {
		if math.Abs(float64(data[i]-want)) > 1e-6 {
			t.Errorf("Param[%d]: expected %f, got %f", i, want, data[i])
		}
	}
}

func TestSGDMomentum(t *testing.T) {
	param, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 1})
	param.SetRequiresGrad(true)
	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 1})

	sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0.9, 0, 0, false)

	// First step: velocity = grad, param = 1 - 0.1*1 = 0.9
	backwardInto(t, param, grad)
	if err := sgd.Step(); err != nil {
		t.Fatalf("First step failed: %v", err)
	}

	// Second step with the same gradient:
	// velocity = 0.9*1 + 1 = 1.9, param = 0.9 - 0.1*1.9 = 0.71
	sgd.ZeroGrad()
	backwardInto(t, param, grad)
	if err := sgd.Step(); err != nil {
		t.Fatalf("Second step failed: %v", err)
	}

	data, _ := param.GetFloat32Data()
	for i := range data {
		if math.Abs(float64(data[i])-0.71) > 1e-6 {
			t.Errorf("Param[%d]: expected 0.71, got %f", i, data[i])
		}
	}
}

func TestAdamFirstStep(t *testing.T) {
	param, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 2})
	param.SetRequiresGrad(true)
	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{3, -4})

	adam := NewAdamWithDefaults([]*tensor.Tensor{param}, 0.1)

	backwardInto(t, param, grad)
	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// After bias correction the first update is lr * sign(grad)
	expected := []float32{0.9, 2.1}
	data, _ := param.GetFloat32Data()
	for i, want := range expected {
		if math.Abs(float64(data[i]-want)) > 1e-4 {
			t.Errorf("Param[%d]: expected %f, got %f", i, want, data[i])
		}
	}
}

func TestAdamLossDecreases(t *testing.T) {
	// Minimize (w - 3)^2 by gradient descent on w
	param, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{0})
	param.SetRequiresGrad(true)
	target, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{3})

	adam := NewAdamWithDefaults([]*tensor.Tensor{param}, 0.1)
	criterion := NewMSELoss("mean")

	var firstLoss, lastLoss float64
	for i := 0; i < 100; i++ {
		adam.ZeroGrad()

		loss, err := criterion.Forward(param, target)
		if err != nil {
			t.Fatalf("Loss forward failed: %v", err)
		}
		lossValue, _ := loss.Item()
		lastLoss = float64(lossValue.(float32))
		if i == 0 {
			firstLoss = lastLoss
		}

		seed, err := criterion.Backward(param, target)
		if err != nil {
			t.Fatalf("Loss backward failed: %v", err)
		}
		if err := param.Backward(seed); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		if err := adam.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	if lastLoss >= firstLoss {
		t.Errorf("Expected loss to decrease, got %f -> %f", firstLoss, lastLoss)
	}
	if lastLoss > 0.01 {
		t.Errorf("Expected near-zero final loss, got %f", lastLoss)
	}
}

func TestZeroGrad(t *testing.T) {
	param, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 2})
	param.SetRequiresGrad(true)
	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{3, 4})

	sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0, 0, 0, false)

	backwardInto(t, param, grad)
	if param.Grad() == nil {
		t.Fatal("Expected gradient after backward")
	}

	sgd.ZeroGrad()
	gradData, _ := param.Grad().GetFloat32Data()
	for i, g := range gradData {
		if g != 0 {
			t.Errorf("Grad[%d]: expected 0 after ZeroGrad, got %f", i, g)
		}
	}
}

func TestOptimizerLearningRate(t *testing.T) {
	param, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{1})
	param.SetRequiresGrad(true)

	t.Run("SGD", func(t *testing.T) {
		sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0, 0, 0, false)
		if sgd.GetLR() != 0.1 {
			t.Errorf("Expected LR 0.1, got %f", sgd.GetLR())
		}
		sgd.SetLR(0.01)
		if sgd.GetLR() != 0.01 {
			t.Errorf("Expected LR 0.01 after SetLR, got %f", sgd.GetLR())
		}
	})

	t.Run("Adam", func(t *testing.T) {
		adam := NewAdamWithDefaults([]*tensor.Tensor{param}, 0.001)
		if adam.GetLR() != 0.001 {
			t.Errorf("Expected LR 0.001, got %f", adam.GetLR())
		}
		adam.SetLR(0.0005)
		if adam.GetLR() != 0.0005 {
			t.Errorf("Expected LR 0.0005 after SetLR, got %f", adam.GetLR())
		}
	})
}
