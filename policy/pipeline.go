// Package policy composes a trainable latent predictor with a frozen
// trajectory decoder and differentiable forward kinematics. The pipeline
// maps a perception latent to the 3D position the decoded trajectory's
// final joint pose reaches, so a position loss trains the predictor
// end to end while the decoder and the kinematics stay fixed.
package policy

import (
	"fmt"

	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/robot"
	"github.com/mtoivainen/latentreach/tensor"
)

// Pipeline chains predictor -> decoder -> final joint pose -> angle
// unnormalization -> end-effector position. It implements nn.Module;
// Parameters exposes only the predictor's tensors, so optimizers never
// touch the decoder.
type Pipeline struct {
	policy  *Predictor
	decoder *TrajectoryDecoder
	arm     *robot.Arm

	// Per-joint angle bounds, broadcast over the batch when decoder
	// output is mapped from [0, 1] back to radians
	mins   *tensor.Tensor
	ranges *tensor.Tensor
}

// NewPipeline composes the three stages, checking that their widths agree
func NewPipeline(policy *Predictor, decoder *TrajectoryDecoder, arm *robot.Arm) (*Pipeline, error) {
	if policy == nil || decoder == nil || arm == nil {
		return nil, fmt.Errorf("pipeline requires a policy, a decoder and an arm")
	}
	if policy.OutputDim() != decoder.LatentDim() {
		return nil, fmt.Errorf("policy output width %d does not match decoder latent width %d",
			policy.OutputDim(), decoder.LatentDim())
	}
	if arm.NumJoints() != decoder.NumJoints() {
		return nil, fmt.Errorf("arm has %d joints, decoder produces %d", arm.NumJoints(), decoder.NumJoints())
	}

	minsData, rangesData := arm.AngleBounds()
	mins, err := tensor.NewTensor([]int{arm.NumJoints()}, tensor.Float32, minsData)
	if err != nil {
		return nil, fmt.Errorf("failed to create angle minimum tensor: %v", err)
	}
	ranges, err := tensor.NewTensor([]int{arm.NumJoints()}, tensor.Float32, rangesData)
	if err != nil {
		return nil, fmt.Errorf("failed to create angle range tensor: %v", err)
	}

	return &Pipeline{
		policy:  policy,
		decoder: decoder,
		arm:     arm,
		mins:    mins,
		ranges:  ranges,
	}, nil
}

// Forward maps perception latents [batch, gLatent] to end-effector
// positions [batch, 3]
func (p *Pipeline) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	// perception latent -> trajectory latent
	latent, err := p.policy.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("policy forward failed: %v", err)
	}

	// trajectory latent -> normalized trajectory [batch, joints, actions]
	flat, err := p.decoder.Forward(latent)
	if err != nil {
		return nil, fmt.Errorf("decoder forward failed: %v", err)
	}
	traj, err := p.decoder.ToTrajectory(flat)
	if err != nil {
		return nil, fmt.Errorf("trajectory reshape failed: %v", err)
	}

	// the last action column holds the final joint pose
	final, err := tensor.SelectAutograd(traj, 2, p.decoder.NumActions()-1)
	if err != nil {
		return nil, fmt.Errorf("final pose selection failed: %v", err)
	}

	// map [0, 1] back to joint angles: range*x + min per joint
	scaled, err := tensor.MulAutograd(final, p.ranges)
	if err != nil {
		return nil, fmt.Errorf("angle scaling failed: %v", err)
	}
	angles, err := tensor.AddAutograd(scaled, p.mins)
	if err != nil {
		return nil, fmt.Errorf("angle offset failed: %v", err)
	}

	// joint angles -> cartesian tool position
	return robot.EndEffectorPositions(p.arm, angles)
}

// Latents runs only the predictor over every batch from the source and
// returns the trajectory latents stacked as [n, latentDim]. The predictor
// is evaluated with its current weights and left in its prior mode.
func (p *Pipeline) Latents(source nn.BatchSource) (*tensor.Tensor, error) {
	wasTraining := p.policy.IsTraining()
	p.policy.Eval()
	if wasTraining {
		defer p.policy.Train()
	}

	source.Reset()

	var data []float32
	var rows int

	for {
		batch, err := source.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to load batch: %v", err)
		}
		if batch == nil {
			break
		}

		latent, err := p.policy.Forward(batch.Data)
		if err != nil {
			return nil, fmt.Errorf("policy forward failed: %v", err)
		}
		values, err := latent.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read latents: %v", err)
		}

		data = append(data, values...)
		rows += batch.Data.Shape[0]
	}

	if rows == 0 {
		return nil, fmt.Errorf("latent source produced no batches")
	}

	return tensor.NewTensor([]int{rows, p.policy.OutputDim()}, tensor.Float32, data)
}

// Policy returns the trainable predictor
func (p *Pipeline) Policy() *Predictor {
	return p.policy
}

// Decoder returns the frozen trajectory decoder
func (p *Pipeline) Decoder() *TrajectoryDecoder {
	return p.decoder
}

// Arm returns the kinematic model positions are computed against
func (p *Pipeline) Arm() *robot.Arm {
	return p.arm
}

// Parameters returns the predictor's trainable parameters. The decoder's
// tensors are excluded so the optimizer never updates them.
func (p *Pipeline) Parameters() []*tensor.Tensor {
	return p.policy.Parameters()
}

// Train sets the predictor to training mode. The decoder stays in eval.
func (p *Pipeline) Train() {
	p.policy.Train()
}

// Eval sets the predictor to evaluation mode
func (p *Pipeline) Eval() {
	p.policy.Eval()
}

// IsTraining returns true if the predictor is in training mode
func (p *Pipeline) IsTraining() bool {
	return p.policy.IsTraining()
}
