package nn

import (
	"fmt"

	"github.com/mtoivainen/latentreach/tensor"
)

// Loss interface defines methods that all loss functions must implement.
// Forward returns the scalar loss value; Backward returns the gradient of
// the loss with respect to the predictions, used to seed the autograd pass.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
	Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if predicted.DType != target.DType {
		return nil, fmt.Errorf("predicted and target tensors must have the same dtype")
	}

	if len(predicted.Shape) != len(target.Shape) {
		return nil, fmt.Errorf("predicted and target tensors must have the same shape")
	}

	for i, dim := range predicted.Shape {
		if dim != target.Shape[i] {
			return nil, fmt.Errorf("predicted and target tensors must have the same shape")
		}
	}

	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return nil, fmt.Errorf("subtraction failed: %v", err)
	}

	squared, err := tensor.Mul(diff, diff)
	if err != nil {
		return nil, fmt.Errorf("multiplication failed: %v", err)
	}

	loss, err := mse.sumAllElements(squared)
	if err != nil {
		return nil, fmt.Errorf("sum computation failed: %v", err)
	}

	if mse.reduction == "mean" {
		n := float64(predicted.NumElems)
		loss, err = tensor.Mul(loss, tensor.FromScalar(1.0/n))
		if err != nil {
			return nil, fmt.Errorf("mean computation failed: %v", err)
		}
	}

	return loss, nil
}

// Backward computes the gradient of MSE loss
func (mse *MSELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	// MSE gradient: d/d(pred) = 2 * (predicted - target) / N
	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return nil, fmt.Errorf("gradient subtraction failed: %v", err)
	}

	grad, err := tensor.Mul(diff, tensor.FromScalar(2.0))
	if err != nil {
		return nil, fmt.Errorf("gradient scaling failed: %v", err)
	}

	if mse.reduction == "mean" {
		n := float64(predicted.NumElems)
		grad, err = tensor.Mul(grad, tensor.FromScalar(1.0/n))
		if err != nil {
			return nil, fmt.Errorf("gradient mean computation failed: %v", err)
		}
	}

	return grad, nil
}

// sumAllElements sums all elements in a tensor to produce a scalar
func (mse *MSELoss) sumAllElements(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t.DType != tensor.Float32 {
		return nil, fmt.Errorf("sumAllElements only supports Float32 tensors")
	}

	data := t.Data.([]float32)
	var sum float32
	for _, val := range data {
		sum += val
	}

	return tensor.NewTensor([]int{1}, t.DType, []float32{sum})
}
