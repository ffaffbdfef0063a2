package tensor

import (
	"fmt"
)

// reduceGradientToShape reduces a gradient tensor to match the target shape
// This is needed when broadcasting occurred during forward pass
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad.Clone()
	}

	// Handle scalar case (target shape is [1] or similar)
	if len(targetShape) == 1 && targetShape[0] == 1 {
		return sumAllElements(grad)
	}

	result := grad
	var err error

	gradDims := len(grad.Shape)
	targetDims := len(targetShape)

	// If target has fewer dimensions, sum over leading dimensions
	dimsToSum := gradDims - targetDims
	for i := 0; i < dimsToSum; i++ {
		result, err = sumOverDimension(result, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to sum over dimension: %v", err)
		}
	}

	// Now handle remaining dimensions that might have been broadcast from size 1
	for i := 0; i < len(targetShape); i++ {
		if i < len(result.Shape) && result.Shape[i] != targetShape[i] {
			if targetShape[i] == 1 && result.Shape[i] > 1 {
				result, err = sumOverDimension(result, i)
				if err != nil {
					return nil, fmt.Errorf("failed to sum over broadcast dimension: %v", err)
				}
				result, err = Unsqueeze(result, i)
				if err != nil {
					return nil, fmt.Errorf("failed to restore broadcast dimension: %v", err)
				}
			}
		}
	}

	if !shapesEqual(result.Shape, targetShape) {
		result, err = Reshape(result, targetShape)
		if err != nil {
			return nil, fmt.Errorf("failed to reshape gradient: %v", err)
		}
	}

	return result, nil
}

// sumAllElements sums all elements in a tensor to create a scalar
func sumAllElements(t *Tensor) (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		sum := float32(0)
		for _, val := range data {
			sum += val
		}
		return NewTensor([]int{1}, t.DType, []float32{sum})
	case Int32:
		data := t.Data.([]int32)
		sum := int32(0)
		for _, val := range data {
			sum += val
		}
		return NewTensor([]int{1}, t.DType, []int32{sum})
	default:
		return nil, fmt.Errorf("unsupported data type for sum: %v", t.DType)
	}
}

// sumOverDimension sums a tensor over a specific dimension
func sumOverDimension(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dimension %d out of bounds for tensor with %d dimensions", dim, len(t.Shape))
	}

	outputShape := make([]int, 0, len(t.Shape)-1)
	for i, size := range t.Shape {
		if i != dim {
			outputShape = append(outputShape, size)
		}
	}

	if len(outputShape) == 0 {
		return sumAllElements(t)
	}

	result, err := Zeros(outputShape, t.DType)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		inputData := t.Data.([]float32)
		outputData := result.Data.([]float32)

		inputStrides := calculateStrides(t.Shape)

		for outputIdx := 0; outputIdx < result.NumElems; outputIdx++ {
			outputCoords := indexToCoords(outputIdx, outputShape)

			// Map to input coordinates (insert dimension being summed)
			inputCoords := make([]int, len(t.Shape))
			outputDim := 0
			for inputDim := 0; inputDim < len(t.Shape); inputDim++ {
				if inputDim == dim {
					inputCoords[inputDim] = 0
				} else {
					inputCoords[inputDim] = outputCoords[outputDim]
					outputDim++
				}
			}

			sum := float32(0)
			for k := 0; k < t.Shape[dim]; k++ {
				inputCoords[dim] = k
				sum += inputData[coordsToIndex(inputCoords, inputStrides)]
			}
			outputData[outputIdx] = sum
		}
	case Int32:
		inputData := t.Data.([]int32)
		outputData := result.Data.([]int32)

		inputStrides := calculateStrides(t.Shape)

		for outputIdx := 0; outputIdx < result.NumElems; outputIdx++ {
			outputCoords := indexToCoords(outputIdx, outputShape)

			inputCoords := make([]int, len(t.Shape))
			outputDim := 0
			for inputDim := 0; inputDim < len(t.Shape); inputDim++ {
				if inputDim == dim {
					inputCoords[inputDim] = 0
				} else {
					inputCoords[inputDim] = outputCoords[outputDim]
					outputDim++
				}
			}

			sum := int32(0)
			for k := 0; k < t.Shape[dim]; k++ {
				inputCoords[dim] = k
				sum += inputData[coordsToIndex(inputCoords, inputStrides)]
			}
			outputData[outputIdx] = sum
		}
	default:
		return nil, fmt.Errorf("unsupported data type for sum: %v", t.DType)
	}

	return result, nil
}

// Helper functions for coordinate conversion
func indexToCoords(index int, shape []int) []int {
	coords := make([]int, len(shape))
	remaining := index
	for i := len(shape) - 1; i >= 0; i-- {
		coords[i] = remaining % shape[i]
		remaining /= shape[i]
	}
	return coords
}

func coordsToIndex(coords []int, strides []int) int {
	index := 0
	for i, coord := range coords {
		index += coord * strides[i]
	}
	return index
}

// AddOp implements the Operation interface for tensor addition
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	aB, bB, err := BroadcastTensorsForOperation(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result, err := Add(aB, bB)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	if len(op.inputs) != 2 {
		panic("AddOp inputs not properly stored")
	}

	// For addition the gradient flows unchanged to both inputs; if
	// broadcasting occurred, reduce gradients back to the input shapes.
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input A: %v", err))
	}

	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

func (op *AddOp) Inputs() []*Tensor {
	return op.inputs
}

// SubOp implements the Operation interface for tensor subtraction
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	aB, bB, err := BroadcastTensorsForOperation(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result, err := Sub(aB, bB)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input A: %v", err))
	}

	negGradOut, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient for negation: %v", err))
	}

	switch negGradOut.DType {
	case Float32:
		data := negGradOut.Data.([]float32)
		for i := range data {
			data[i] = -data[i]
		}
	case Int32:
		data := negGradOut.Data.([]int32)
		for i := range data {
			data[i] = -data[i]
		}
	}

	gradB, err := reduceGradientToShape(negGradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

func (op *SubOp) Inputs() []*Tensor {
	return op.inputs
}

// MulOp implements the Operation interface for element-wise multiplication
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	aB, bB, err := BroadcastTensorsForOperation(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result, err := Mul(aB, bB)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(a*b)/da = b, d(a*b)/db = a, with broadcast reduction back to the
	// original input shapes.
	bBroadcast, err := BroadcastTensor(b, gradOut.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to broadcast b for gradA: %v", err))
	}

	gradAFull, err := Mul(gradOut, bBroadcast)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradA: %v", err))
	}

	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input A: %v", err))
	}

	aBroadcast, err := BroadcastTensor(a, gradOut.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to broadcast a for gradB: %v", err))
	}

	gradBFull, err := Mul(gradOut, aBroadcast)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradB: %v", err))
	}

	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

func (op *MulOp) Inputs() []*Tensor {
	return op.inputs
}

// MatMulOp implements the Operation interface for matrix multiplication
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MatMulOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := MatMul(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(A @ B)/dA = gradOut @ B^T, d(A @ B)/dB = A^T @ gradOut
	bT, err := Transpose(b, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("Failed to transpose B: %v", err))
	}

	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradA: %v", err))
	}

	aT, err := Transpose(a, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("Failed to transpose A: %v", err))
	}

	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradB: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

func (op *MatMulOp) Inputs() []*Tensor {
	return op.inputs
}

// ReLUOp implements the Operation interface for ReLU activation
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := ReLU(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	// dReLU(x)/dx = 1 if x > 0, else 0
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient: %v", err))
	}

	switch a.DType {
	case Float32:
		inputData := a.Data.([]float32)
		gradData := grad.Data.([]float32)
		for i := range gradData {
			if inputData[i] <= 0 {
				gradData[i] = 0
			}
		}
	case Int32:
		inputData := a.Data.([]int32)
		gradData := grad.Data.([]int32)
		for i := range gradData {
			if inputData[i] <= 0 {
				gradData[i] = 0
			}
		}
	}

	return []*Tensor{grad}
}

func (op *ReLUOp) Inputs() []*Tensor {
	return op.inputs
}

// SigmoidOp implements the Operation interface for Sigmoid activation
type SigmoidOp struct {
	inputs []*Tensor
	output *Tensor // Stored for the backward pass
}

func (op *SigmoidOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("SigmoidOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Sigmoid(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	op.output = result

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *SigmoidOp) Backward(gradOut *Tensor) []*Tensor {
	if op.output == nil {
		panic("SigmoidOp: output not stored for backward pass")
	}

	// ds(x)/dx = s(x) * (1 - s(x))
	ones, err := Ones(op.output.Shape, op.output.DType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create ones tensor: %v", err))
	}

	oneMinusOutput, err := Sub(ones, op.output)
	if err != nil {
		panic(fmt.Sprintf("Failed to compute (1 - output): %v", err))
	}

	sigmoidGrad, err := Mul(op.output, oneMinusOutput)
	if err != nil {
		panic(fmt.Sprintf("Failed to compute sigmoid gradient: %v", err))
	}

	grad, err := Mul(gradOut, sigmoidGrad)
	if err != nil {
		panic(fmt.Sprintf("Failed to apply chain rule: %v", err))
	}

	return []*Tensor{grad}
}

func (op *SigmoidOp) Inputs() []*Tensor {
	return op.inputs
}

// TanhOp implements the Operation interface for Tanh activation
type TanhOp struct {
	inputs []*Tensor
	output *Tensor // Stored for the backward pass
}

func (op *TanhOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("TanhOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Tanh(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	op.output = result

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *TanhOp) Backward(gradOut *Tensor) []*Tensor {
	if op.output == nil {
		panic("TanhOp: output not stored for backward pass")
	}

	// dtanh(x)/dx = 1 - tanh(x)^2
	squared, err := Mul(op.output, op.output)
	if err != nil {
		panic(fmt.Sprintf("Failed to square output: %v", err))
	}

	ones, err := Ones(op.output.Shape, op.output.DType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create ones tensor: %v", err))
	}

	tanhGrad, err := Sub(ones, squared)
	if err != nil {
		panic(fmt.Sprintf("Failed to compute (1 - output^2): %v", err))
	}

	grad, err := Mul(gradOut, tanhGrad)
	if err != nil {
		panic(fmt.Sprintf("Failed to apply chain rule: %v", err))
	}

	return []*Tensor{grad}
}

func (op *TanhOp) Inputs() []*Tensor {
	return op.inputs
}

// ReshapeOp implements the Operation interface for shape changes. The
// backward pass reshapes the gradient back to the input shape.
type ReshapeOp struct {
	inputs   []*Tensor
	newShape []int
}

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReshapeOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Reshape(a, op.newShape)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Reshape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reshape gradient: %v", err))
	}

	return []*Tensor{grad}
}

func (op *ReshapeOp) Inputs() []*Tensor {
	return op.inputs
}

// SelectOp implements the Operation interface for indexing along one
// dimension. The backward pass scatters the gradient into a zero tensor of
// the input shape at the selected index.
type SelectOp struct {
	inputs []*Tensor
	dim    int
	index  int
}

func (op *SelectOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("SelectOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Select(a, op.dim, op.index)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *SelectOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := Zeros(a.Shape, a.DType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create gradient tensor: %v", err))
	}

	switch a.DType {
	case Float32:
		gradData := grad.Data.([]float32)
		outData := gradOut.Data.([]float32)

		out := 0
		for i := 0; i < a.NumElems; i++ {
			indices := getIndicesFromLinear(i, a.Shape)
			if indices[op.dim] == op.index {
				gradData[i] = outData[out]
				out++
			}
		}
	case Int32:
		gradData := grad.Data.([]int32)
		outData := gradOut.Data.([]int32)

		out := 0
		for i := 0; i < a.NumElems; i++ {
			indices := getIndicesFromLinear(i, a.Shape)
			if indices[op.dim] == op.index {
				gradData[i] = outData[out]
				out++
			}
		}
	}

	return []*Tensor{grad}
}

func (op *SelectOp) Inputs() []*Tensor {
	return op.inputs
}

// High-level autograd functions that create and execute operations. They
// validate inputs up front so the Forward implementations only fail on
// programming errors.

// AddAutograd performs addition with automatic differentiation
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	if err := checkCompatibility(a, b); err != nil {
		return nil, err
	}
	if _, err := BroadcastShapes(a.Shape, b.Shape); err != nil {
		return nil, err
	}
	op := &AddOp{}
	return op.Forward(a, b), nil
}

// SubAutograd performs subtraction with automatic differentiation
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	if err := checkCompatibility(a, b); err != nil {
		return nil, err
	}
	if _, err := BroadcastShapes(a.Shape, b.Shape); err != nil {
		return nil, err
	}
	op := &SubOp{}
	return op.Forward(a, b), nil
}

// MulAutograd performs element-wise multiplication with automatic differentiation
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	if err := checkCompatibility(a, b); err != nil {
		return nil, err
	}
	if _, err := BroadcastShapes(a.Shape, b.Shape); err != nil {
		return nil, err
	}
	op := &MulOp{}
	return op.Forward(a, b), nil
}

// MatMulAutograd performs matrix multiplication with automatic differentiation
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	if err := checkCompatibility(a, b); err != nil {
		return nil, err
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v x %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("incompatible dimensions for matmul: %v x %v", a.Shape, b.Shape)
	}
	op := &MatMulOp{}
	return op.Forward(a, b), nil
}

// ReLUAutograd performs ReLU activation with automatic differentiation
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	op := &ReLUOp{}
	return op.Forward(a), nil
}

// SigmoidAutograd performs Sigmoid activation with automatic differentiation
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	if a.DType != Float32 {
		return nil, fmt.Errorf("Sigmoid only supports Float32 dtype")
	}
	op := &SigmoidOp{}
	return op.Forward(a), nil
}

// TanhAutograd performs Tanh activation with automatic differentiation
func TanhAutograd(a *Tensor) (*Tensor, error) {
	if a.DType != Float32 {
		return nil, fmt.Errorf("Tanh only supports Float32 dtype")
	}
	op := &TanhOp{}
	return op.Forward(a), nil
}

// ReshapeAutograd reshapes a tensor with automatic differentiation
func ReshapeAutograd(a *Tensor, newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != a.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", a.NumElems, newShape)
	}
	op := &ReshapeOp{newShape: newShape}
	return op.Forward(a), nil
}

// SelectAutograd extracts the slice at index along dim with automatic differentiation
func SelectAutograd(a *Tensor, dim, index int) (*Tensor, error) {
	if dim < 0 || dim >= len(a.Shape) {
		return nil, fmt.Errorf("dim %d out of range for tensor with %d dimensions", dim, len(a.Shape))
	}
	if index < 0 || index >= a.Shape[dim] {
		return nil, fmt.Errorf("index %d out of range for dimension %d with size %d", index, dim, a.Shape[dim])
	}
	op := &SelectOp{dim: dim, index: index}
	return op.Forward(a), nil
}

// ApplyOp attaches a custom Operation defined outside this package to the
// autograd graph. The operation's Forward is invoked with the given inputs;
// the result is wired up so Backward reaches the operation and its inputs.
func ApplyOp(op Operation, inputs ...*Tensor) (*Tensor, error) {
	if op == nil {
		return nil, fmt.Errorf("ApplyOp: operation is nil")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("ApplyOp: at least one input required")
	}

	result := op.Forward(inputs...)
	if result == nil {
		return nil, fmt.Errorf("ApplyOp: operation returned nil tensor")
	}

	result.creator = op
	requiresGrad := false
	for _, in := range inputs {
		if in.requiresGrad {
			requiresGrad = true
			break
		}
	}
	result.requiresGrad = requiresGrad

	return result, nil
}
