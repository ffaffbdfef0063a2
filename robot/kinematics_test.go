package robot

import (
	"math"
	"testing"
)

// planarArm is a two-joint arm in the xy plane: unit upper arm, unit
// forearm via the tool offset.
func planarArm() *Arm {
	arm := &Arm{
		Name: "planar",
		Joints: []Joint{
			{Name: "shoulder", Axis: [3]float64{0, 0, 1}},
			{Name: "elbow", Axis: [3]float64{0, 0, 1}, Origin: [3]float64{1, 0, 0}},
		},
		Tool: [3]float64{1, 0, 0},
	}
	if err := arm.Validate(); err != nil {
		panic(err)
	}
	return arm
}

func assertPosition(t *testing.T, got [3]float64, want [3]float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("Position[%d]: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestEndEffectorSingleJoint(t *testing.T) {
	arm := &Arm{
		Name:   "one",
		Joints: []Joint{{Name: "base", Axis: [3]float64{0, 0, 1}}},
		Tool:   [3]float64{1, 0, 0},
	}
	if err := arm.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	cases := []struct {
		angle float64
		want  [3]float64
	}{
		{0, [3]float64{1, 0, 0}},
		{math.Pi / 2, [3]float64{0, 1, 0}},
		{math.Pi, [3]float64{-1, 0, 0}},
		{-math.Pi / 2, [3]float64{0, -1, 0}},
	}

	for _, tc := range cases {
		pos, err := arm.EndEffector([]float64{tc.angle})
		if err != nil {
			t.Fatalf("EndEffector failed: %v", err)
		}
		assertPosition(t, pos, tc.want)
	}
}

func TestEndEffectorPlanar(t *testing.T) {
	arm := planarArm()

	cases := []struct {
		angles []float64
		want   [3]float64
	}{
		{[]float64{0, 0}, [3]float64{2, 0, 0}},
		{[]float64{math.Pi / 2, 0}, [3]float64{0, 2, 0}},
		{[]float64{0, math.Pi / 2}, [3]float64{1, 1, 0}},
		{[]float64{math.Pi / 2, math.Pi / 2}, [3]float64{-1, 1, 0}},
	}

	for _, tc := range cases {
		pos, err := arm.EndEffector(tc.angles)
		if err != nil {
			t.Fatalf("EndEffector failed: %v", err)
		}
		assertPosition(t, pos, tc.want)
	}
}

func TestEndEffectorDefaultArmHome(t *testing.T) {
	arm := DefaultArm()

	pos, err := arm.EndEffector(make([]float64, 7))
	if err != nil {
		t.Fatalf("EndEffector failed: %v", err)
	}

	// At zero angles the chain stacks up its link offsets
	assertPosition(t, pos, [3]float64{0.088, 0, 0.333 + 0.316 + 0.384 + 0.107})
}

func TestEndEffectorAngleCountMismatch(t *testing.T) {
	arm := planarArm()
	if _, err := arm.EndEffector([]float64{0.5}); err == nil {
		t.Error("Expected error for wrong angle count")
	}
}

func TestPositionJacobianNumeric(t *testing.T) {
	arms := map[string]*Arm{
		"planar":  planarArm(),
		"default": DefaultArm(),
	}
	anglesByArm := map[string][]float64{
		"planar":  {0.3, -0.7},
		"default": {0.1, -0.4, 0.8, 1.1, -0.2, 0.5, -0.9},
	}

	const eps = 1e-6

	for name, arm := range arms {
		t.Run(name, func(t *testing.T) {
			angles := anglesByArm[name]

			jacobian, err := arm.PositionJacobian(angles)
			if err != nil {
				t.Fatalf("PositionJacobian failed: %v", err)
			}
			if len(jacobian) != len(angles) {
				t.Fatalf("Expected %d jacobian columns, got %d", len(angles), len(jacobian))
			}

			for j := range angles {
				plus := append([]float64{}, angles...)
				minus := append([]float64{}, angles...)
				plus[j] += eps
				minus[j] -= eps

				posPlus, err := arm.EndEffector(plus)
				if err != nil {
					t.Fatalf("EndEffector failed: %v", err)
				}
				posMinus, err := arm.EndEffector(minus)
				if err != nil {
					t.Fatalf("EndEffector failed: %v", err)
				}

				for k := 0; k < 3; k++ {
					numeric := (posPlus[k] - posMinus[k]) / (2 * eps)
					if math.Abs(jacobian[j][k]-numeric) > 1e-5 {
						t.Errorf("Jacobian[%d][%d]: analytic %f, numeric %f", j, k, jacobian[j][k], numeric)
					}
				}
			}
		})
	}
}
