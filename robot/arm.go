// Package robot models a serial revolute arm: a YAML-described kinematic
// chain with joint bounds, differentiable forward kinematics, and the
// autograd operation that maps joint angles to end-effector positions.
package robot

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Joint is one revolute joint of the chain. Origin is the translation
// from the previous joint's frame; Axis is the rotation axis in the
// joint's own frame. Min and Max bound the joint angle in radians.
type Joint struct {
	Name   string     `yaml:"name"`
	Axis   [3]float64 `yaml:"axis"`
	Origin [3]float64 `yaml:"origin"`
	Min    float64    `yaml:"min"`
	Max    float64    `yaml:"max"`
}

// Arm is a serial chain of revolute joints with an optional tool offset
// applied after the last joint.
type Arm struct {
	Name   string     `yaml:"name"`
	Joints []Joint    `yaml:"joints"`
	Tool   [3]float64 `yaml:"tool"`
}

// LoadArm reads an arm description from a YAML file
func LoadArm(path string) (*Arm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read arm description: %w", err)
	}

	var arm Arm
	if err := yaml.Unmarshal(data, &arm); err != nil {
		return nil, fmt.Errorf("failed to parse arm description: %w", err)
	}

	if err := arm.Validate(); err != nil {
		return nil, err
	}

	return &arm, nil
}

// DefaultArm returns the built-in 7-joint arm used when no description
// file is given. Link lengths follow a tabletop manipulator with an
// upright shoulder, elbow offsets, and a wrist tool plate.
func DefaultArm() *Arm {
	arm := &Arm{
		Name: "default-7dof",
		Joints: []Joint{
			{Name: "shoulder_pan", Axis: [3]float64{0, 0, 1}, Origin: [3]float64{0, 0, 0.333}},
			{Name: "shoulder_lift", Axis: [3]float64{0, 1, 0}, Origin: [3]float64{0, 0, 0}},
			{Name: "upper_arm_roll", Axis: [3]float64{0, 0, 1}, Origin: [3]float64{0, 0, 0.316}},
			{Name: "elbow_flex", Axis: [3]float64{0, 1, 0}, Origin: [3]float64{0.0825, 0, 0}},
			{Name: "forearm_roll", Axis: [3]float64{0, 0, 1}, Origin: [3]float64{-0.0825, 0, 0.384}},
			{Name: "wrist_flex", Axis: [3]float64{0, 1, 0}, Origin: [3]float64{0, 0, 0}},
			{Name: "wrist_roll", Axis: [3]float64{0, 0, 1}, Origin: [3]float64{0.088, 0, 0}},
		},
		Tool: [3]float64{0, 0, 0.107},
	}

	// Validate cannot fail on the built-in chain
	if err := arm.Validate(); err != nil {
		panic(fmt.Sprintf("default arm invalid: %v", err))
	}
	return arm
}

// Validate checks the chain invariants and fills in defaults: joint axes
// are normalized in place, and joints with zero bounds get [-pi, pi].
func (a *Arm) Validate() error {
	if len(a.Joints) == 0 {
		return fmt.Errorf("arm %q has no joints", a.Name)
	}

	for i := range a.Joints {
		joint := &a.Joints[i]

		norm := math.Sqrt(joint.Axis[0]*joint.Axis[0] + joint.Axis[1]*joint.Axis[1] + joint.Axis[2]*joint.Axis[2])
		if norm == 0 {
			return fmt.Errorf("joint %d (%s): zero rotation axis", i, joint.Name)
		}
		joint.Axis[0] /= norm
		joint.Axis[1] /= norm
		joint.Axis[2] /= norm

		if joint.Min == 0 && joint.Max == 0 {
			joint.Min = -math.Pi
			joint.Max = math.Pi
		}
		if joint.Max <= joint.Min {
			return fmt.Errorf("joint %d (%s): bounds [%g, %g] are empty", i, joint.Name, joint.Min, joint.Max)
		}
	}

	return nil
}

// NumJoints returns the number of joints in the chain
func (a *Arm) NumJoints() int {
	return len(a.Joints)
}

// AngleBounds returns the per-joint minimum angles and bound ranges as
// float32 vectors, used to map normalized [0, 1] decoder output back to
// joint angles via range*x + min.
func (a *Arm) AngleBounds() (mins, ranges []float32) {
	mins = make([]float32, len(a.Joints))
	ranges = make([]float32, len(a.Joints))
	for i, joint := range a.Joints {
		mins[i] = float32(joint.Min)
		ranges[i] = float32(joint.Max - joint.Min)
	}
	return mins, ranges
}
