package tensor

import (
	"fmt"
)

// Backward computes gradients for all tensors in the computation graph that
// require them, starting from this tensor. grad is the gradient of the final
// objective with respect to this tensor; it may be nil for scalar tensors,
// in which case a gradient of 1.0 is used.
//
// Gradients are accumulated into the grad field of leaf tensors (tensors
// with no creator). Call ZeroGrad between optimization steps to reset them.
func (t *Tensor) Backward(grad *Tensor) error {
	if !t.requiresGrad {
		return fmt.Errorf("tensor does not require gradients")
	}

	seed := grad
	if seed == nil {
		if t.NumElems != 1 {
			return fmt.Errorf("gradient must be provided for non-scalar tensor with shape %v", t.Shape)
		}
		ones, err := Ones(t.Shape, t.DType)
		if err != nil {
			return fmt.Errorf("failed to create seed gradient: %v", err)
		}
		seed = ones
	} else {
		if !shapesEqual(seed.Shape, t.Shape) {
			return fmt.Errorf("gradient shape %v does not match tensor shape %v", seed.Shape, t.Shape)
		}
		if seed.DType != t.DType {
			return fmt.Errorf("gradient dtype %v does not match tensor dtype %v", seed.DType, t.DType)
		}
	}

	// Topological order over the subgraph that requires gradients.
	// Subgraphs of constant tensors are never visited.
	var order []*Tensor
	visited := make(map[*Tensor]bool)

	var visit func(node *Tensor)
	visit = func(node *Tensor) {
		if visited[node] || !node.requiresGrad {
			return
		}
		visited[node] = true
		if node.creator != nil {
			for _, input := range node.creator.Inputs() {
				visit(input)
			}
		}
		order = append(order, node)
	}
	visit(t)

	// Walk in reverse topological order so every node's gradient is
	// complete before its creator's Backward runs.
	grads := make(map[*Tensor]*Tensor)
	grads[t] = seed

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		nodeGrad := grads[node]
		if nodeGrad == nil {
			continue
		}

		if node.creator == nil {
			if err := node.accumulateGrad(nodeGrad); err != nil {
				return fmt.Errorf("failed to accumulate gradient: %v", err)
			}
			continue
		}

		inputGrads := node.creator.Backward(nodeGrad)
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs", len(inputGrads), len(inputs))
		}

		for j, input := range inputs {
			if !input.requiresGrad || inputGrads[j] == nil {
				continue
			}
			existing := grads[input]
			if existing == nil {
				grads[input] = inputGrads[j]
				continue
			}
			sum, err := Add(existing, inputGrads[j])
			if err != nil {
				return fmt.Errorf("failed to accumulate gradient: %v", err)
			}
			grads[input] = sum
		}
	}

	return nil
}

// accumulateGrad adds delta into the tensor's stored gradient, cloning on
// first use so callers cannot alias internal state.
func (t *Tensor) accumulateGrad(delta *Tensor) error {
	if t.grad == nil {
		clone, err := delta.Clone()
		if err != nil {
			return err
		}
		t.grad = clone
		return nil
	}
	sum, err := Add(t.grad, delta)
	if err != nil {
		return err
	}
	t.grad = sum
	return nil
}

// ZeroGrad clears the stored gradient of this tensor.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}
