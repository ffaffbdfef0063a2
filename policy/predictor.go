package policy

import (
	"fmt"

	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/layers"
	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/tensor"
)

// DefaultHidden is the hidden width of the predictor and decoder MLPs
const DefaultHidden = 64

// Predictor maps a perception latent to the trajectory decoder's latent
// space. It is the only trainable part of the pipeline.
type Predictor struct {
	net  *nn.Sequential
	spec *layers.ModelSpec

	gLatent   int
	latentDim int
}

// NewPredictor creates a predictor MLP with freshly initialized weights:
// Dense(gLatent, hidden) -> ReLU -> Dense(hidden, latentDim). A hidden
// width of 0 selects DefaultHidden.
func NewPredictor(gLatent, latentDim, hidden int) (*Predictor, error) {
	if gLatent <= 0 {
		return nil, fmt.Errorf("perception latent width must be positive, got %d", gLatent)
	}
	if latentDim <= 0 {
		return nil, fmt.Errorf("trajectory latent width must be positive, got %d", latentDim)
	}
	if hidden <= 0 {
		hidden = DefaultHidden
	}

	fc1, err := nn.NewLinear(gLatent, hidden, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor input layer: %v", err)
	}
	fc2, err := nn.NewLinear(hidden, latentDim, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor output layer: %v", err)
	}
	net := nn.NewSequential(fc1, nn.NewReLU(), fc2)

	spec, err := layers.NewModelBuilder([]int{1, gLatent}).
		AddDense(hidden, true, "fc1").
		AddReLU("relu1").
		AddDense(latentDim, true, "fc2").
		Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile predictor spec: %v", err)
	}

	return &Predictor{
		net:       net,
		spec:      spec,
		gLatent:   gLatent,
		latentDim: latentDim,
	}, nil
}

// LoadPredictor rebuilds a predictor from a checkpoint. The architecture
// comes from the checkpoint's model spec, the weights from its tensors.
func LoadPredictor(path string) (*Predictor, error) {
	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatForPath(path))
	ckpt, err := saver.LoadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy checkpoint: %v", err)
	}

	spec := ckpt.ModelSpec
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("policy checkpoint carries no compiled model spec")
	}
	if len(spec.InputShape) != 2 || len(spec.OutputShape) != 2 {
		return nil, fmt.Errorf("policy checkpoint spec is not a 2D latent map: in %v, out %v",
			spec.InputShape, spec.OutputShape)
	}

	net, err := nn.NewSequentialFromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild policy network: %v", err)
	}
	if err := checkpoints.LoadWeights(ckpt.Weights, net.Parameters()); err != nil {
		return nil, fmt.Errorf("failed to restore policy weights: %v", err)
	}

	return &Predictor{
		net:       net,
		spec:      spec,
		gLatent:   spec.InputShape[1],
		latentDim: spec.OutputShape[1],
	}, nil
}

// Forward maps perception latents [batch, gLatent] to trajectory latents
// [batch, latentDim]
func (p *Predictor) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return p.net.Forward(input)
}

// Parameters returns the trainable parameters
func (p *Predictor) Parameters() []*tensor.Tensor {
	return p.net.Parameters()
}

// Train sets the predictor to training mode
func (p *Predictor) Train() {
	p.net.Train()
}

// Eval sets the predictor to evaluation mode
func (p *Predictor) Eval() {
	p.net.Eval()
}

// IsTraining returns true if in training mode
func (p *Predictor) IsTraining() bool {
	return p.net.IsTraining()
}

// Spec returns the architecture description used for checkpointing
func (p *Predictor) Spec() *layers.ModelSpec {
	return p.spec
}

// InputDim returns the perception latent width the predictor consumes
func (p *Predictor) InputDim() int {
	return p.gLatent
}

// OutputDim returns the trajectory latent width the predictor produces
func (p *Predictor) OutputDim() int {
	return p.latentDim
}
