package robot

import (
	"fmt"
	"math"
)

// frame is a rigid transform: rotation matrix plus world position.
type frame struct {
	rot [3][3]float64
	pos [3]float64
}

var identityRot = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// EndEffector computes the world position of the tool tip for the given
// joint angles
func (a *Arm) EndEffector(angles []float64) ([3]float64, error) {
	pos, _, err := a.endEffectorFrames(angles)
	return pos, err
}

// PositionJacobian returns the partial derivatives of the end-effector
// position with respect to each joint angle. Entry j is the world-frame
// velocity of the tool tip per unit joint j velocity: z_j x (p_e - q_j).
func (a *Arm) PositionJacobian(angles []float64) ([][3]float64, error) {
	endPos, frames, err := a.endEffectorFrames(angles)
	if err != nil {
		return nil, err
	}

	jacobian := make([][3]float64, len(a.Joints))
	parent := frame{rot: identityRot}
	for i, joint := range a.Joints {
		// Joint axis and origin in the world frame, before the joint's
		// own rotation
		axis := matVec3(parent.rot, joint.Axis)
		origin := add3(parent.pos, matVec3(parent.rot, joint.Origin))

		jacobian[i] = cross(axis, sub3(endPos, origin))
		parent = frames[i]
	}

	return jacobian, nil
}

// endEffectorFrames walks the chain once, returning the tool position and
// the cumulative frame after each joint
func (a *Arm) endEffectorFrames(angles []float64) ([3]float64, []frame, error) {
	if len(angles) != len(a.Joints) {
		return [3]float64{}, nil, fmt.Errorf("arm has %d joints, got %d angles", len(a.Joints), len(angles))
	}

	frames := make([]frame, len(a.Joints))
	current := frame{rot: identityRot}

	for i, joint := range a.Joints {
		current.pos = add3(current.pos, matVec3(current.rot, joint.Origin))
		current.rot = matMul3(current.rot, rodrigues(joint.Axis, angles[i]))
		frames[i] = current
	}

	tip := add3(current.pos, matVec3(current.rot, a.Tool))
	return tip, frames, nil
}

// rodrigues builds the rotation matrix for a rotation of angle radians
// about a unit axis
func rodrigues(axis [3]float64, angle float64) [3][3]float64 {
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	x, y, z := axis[0], axis[1], axis[2]

	return [3][3]float64{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	}
}

func matMul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

func matVec3(m [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func add3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}
