package robot

import (
	"fmt"

	"github.com/mtoivainen/latentreach/tensor"
)

// endEffectorOp maps a batch of joint angles [B, J] to end-effector
// positions [B, 3]. The backward pass multiplies the incoming position
// gradient by the transposed position Jacobian of each sample.
type endEffectorOp struct {
	arm       *Arm
	inputs    []*tensor.Tensor
	jacobians [][][3]float64 // per sample, per joint
}

// EndEffectorPositions runs forward kinematics over a batch of joint
// angles with automatic differentiation. angles must be a [B, J] Float32
// tensor where J matches the arm's joint count.
func EndEffectorPositions(arm *Arm, angles *tensor.Tensor) (*tensor.Tensor, error) {
	if arm == nil {
		return nil, fmt.Errorf("arm is nil")
	}
	if angles.DType != tensor.Float32 {
		return nil, fmt.Errorf("end effector positions require Float32, got %v", angles.DType)
	}
	if len(angles.Shape) != 2 {
		return nil, fmt.Errorf("joint angles must be [batch, joints], got shape %v", angles.Shape)
	}
	if angles.Shape[1] != arm.NumJoints() {
		return nil, fmt.Errorf("arm has %d joints, got %d angle columns", arm.NumJoints(), angles.Shape[1])
	}

	op := &endEffectorOp{arm: arm}
	return tensor.ApplyOp(op, angles)
}

func (op *endEffectorOp) Forward(inputs ...*tensor.Tensor) *tensor.Tensor {
	if len(inputs) != 1 {
		panic("endEffectorOp requires exactly 1 input")
	}

	angles := inputs[0]
	op.inputs = inputs

	batch := angles.Shape[0]
	joints := angles.Shape[1]

	data, err := angles.GetFloat32Data()
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	positions := make([]float32, batch*3)
	op.jacobians = make([][][3]float64, batch)

	sample := make([]float64, joints)
	for b := 0; b < batch; b++ {
		for j := 0; j < joints; j++ {
			sample[j] = float64(data[b*joints+j])
		}

		pos, err := op.arm.EndEffector(sample)
		if err != nil {
			panic(fmt.Sprintf("forward kinematics failed: %v", err))
		}
		jacobian, err := op.arm.PositionJacobian(sample)
		if err != nil {
			panic(fmt.Sprintf("jacobian failed: %v", err))
		}

		positions[b*3] = float32(pos[0])
		positions[b*3+1] = float32(pos[1])
		positions[b*3+2] = float32(pos[2])
		op.jacobians[b] = jacobian
	}

	result, err := tensor.NewTensor([]int{batch, 3}, tensor.Float32, positions)
	if err != nil {
		panic(fmt.Sprintf("failed to create position tensor: %v", err))
	}

	return result
}

func (op *endEffectorOp) Backward(gradOut *tensor.Tensor) []*tensor.Tensor {
	if op.jacobians == nil {
		panic("endEffectorOp: jacobians not stored for backward pass")
	}

	angles := op.inputs[0]
	batch := angles.Shape[0]
	joints := angles.Shape[1]

	grad, err := gradOut.GetFloat32Data()
	if err != nil {
		panic(fmt.Sprintf("failed to read gradient: %v", err))
	}

	// dL/dtheta_j = sum_k dL/dp_k * dp_k/dtheta_j
	gradAngles := make([]float32, batch*joints)
	for b := 0; b < batch; b++ {
		jacobian := op.jacobians[b]
		for j := 0; j < joints; j++ {
			sum := float64(grad[b*3])*jacobian[j][0] +
				float64(grad[b*3+1])*jacobian[j][1] +
				float64(grad[b*3+2])*jacobian[j][2]
			gradAngles[b*joints+j] = float32(sum)
		}
	}

	result, err := tensor.NewTensor([]int{batch, joints}, tensor.Float32, gradAngles)
	if err != nil {
		panic(fmt.Sprintf("failed to create gradient tensor: %v", err))
	}

	return []*tensor.Tensor{result}
}

func (op *endEffectorOp) Inputs() []*tensor.Tensor {
	return op.inputs
}
