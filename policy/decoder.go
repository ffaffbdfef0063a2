package policy

import (
	"fmt"
	"path/filepath"

	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/layers"
	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/tensor"
)

// TrajectoryDecoder is the decoder half of a pretrained trajectory VAE. It
// maps a trajectory latent to joint trajectories normalized to [0, 1].
// The decoder is frozen: it stays in eval mode and its parameters never
// receive gradients, though gradients flow through it to the predictor.
type TrajectoryDecoder struct {
	net  *nn.Sequential
	spec *layers.ModelSpec

	latentDim  int
	numJoints  int
	numActions int
}

// NewTrajectoryDecoder creates a decoder with freshly initialized weights:
// Dense(latentDim, hidden) -> ReLU -> Dense(hidden, hidden) -> ReLU ->
// Dense(hidden, numJoints*numActions) -> Sigmoid. Training runs load a
// pretrained decoder with LoadTrajectoryDecoder instead; this constructor
// serves tests and synthetic demos.
func NewTrajectoryDecoder(latentDim, hidden, numJoints, numActions int) (*TrajectoryDecoder, error) {
	if latentDim <= 0 {
		return nil, fmt.Errorf("trajectory latent width must be positive, got %d", latentDim)
	}
	if numJoints <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("trajectory shape must be positive, got %d joints x %d actions", numJoints, numActions)
	}
	if hidden <= 0 {
		hidden = DefaultHidden
	}
	outWidth := numJoints * numActions

	fc1, err := nn.NewLinear(latentDim, hidden, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder input layer: %v", err)
	}
	fc2, err := nn.NewLinear(hidden, hidden, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder hidden layer: %v", err)
	}
	fc3, err := nn.NewLinear(hidden, outWidth, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder output layer: %v", err)
	}
	net := nn.NewSequential(fc1, nn.NewReLU(), fc2, nn.NewReLU(), fc3, nn.NewSigmoid())

	spec, err := layers.NewModelBuilder([]int{1, latentDim}).
		AddDense(hidden, true, "dec_fc1").
		AddReLU("dec_relu1").
		AddDense(hidden, true, "dec_fc2").
		AddReLU("dec_relu2").
		AddDense(outWidth, true, "dec_out").
		AddSigmoid("dec_sigmoid").
		Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile decoder spec: %v", err)
	}

	d := &TrajectoryDecoder{
		net:        net,
		spec:       spec,
		latentDim:  latentDim,
		numJoints:  numJoints,
		numActions: numActions,
	}
	d.freeze()
	return d, nil
}

// DecoderPath returns the conventional location of a pretrained decoder
// checkpoint: <modelsDir>/<vaeName>/model_<index>.<ext>
func DecoderPath(modelsDir, vaeName string, modelIndex int, format checkpoints.CheckpointFormat) string {
	filename := fmt.Sprintf("model_%d.%s", modelIndex, format.Extension())
	return filepath.Join(modelsDir, vaeName, filename)
}

// LoadTrajectoryDecoder loads a pretrained decoder from a checkpoint. The
// architecture comes from the checkpoint's model spec; its output width
// must cover numJoints x numActions values per sample.
func LoadTrajectoryDecoder(path string, numJoints, numActions int) (*TrajectoryDecoder, error) {
	if numJoints <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("trajectory shape must be positive, got %d joints x %d actions", numJoints, numActions)
	}

	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatForPath(path))
	ckpt, err := saver.LoadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load decoder checkpoint: %v", err)
	}

	spec := ckpt.ModelSpec
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("decoder checkpoint carries no compiled model spec")
	}
	if len(spec.InputShape) != 2 || len(spec.OutputShape) != 2 {
		return nil, fmt.Errorf("decoder checkpoint spec is not a 2D latent map: in %v, out %v",
			spec.InputShape, spec.OutputShape)
	}
	if spec.OutputShape[1] != numJoints*numActions {
		return nil, fmt.Errorf("decoder output width %d does not match %d joints x %d actions",
			spec.OutputShape[1], numJoints, numActions)
	}

	net, err := nn.NewSequentialFromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild decoder network: %v", err)
	}
	if err := checkpoints.LoadWeights(ckpt.Weights, net.Parameters()); err != nil {
		return nil, fmt.Errorf("failed to restore decoder weights: %v", err)
	}

	d := &TrajectoryDecoder{
		net:        net,
		spec:       spec,
		latentDim:  spec.InputShape[1],
		numJoints:  numJoints,
		numActions: numActions,
	}
	d.freeze()
	return d, nil
}

// freeze detaches the decoder's parameters from gradient accumulation and
// pins the network in eval mode
func (d *TrajectoryDecoder) freeze() {
	for _, param := range d.net.Parameters() {
		param.SetRequiresGrad(false)
	}
	d.net.Eval()
}

// Forward decodes trajectory latents [batch, latentDim] to flat normalized
// trajectories [batch, numJoints*numActions]
func (d *TrajectoryDecoder) Forward(latent *tensor.Tensor) (*tensor.Tensor, error) {
	return d.net.Forward(latent)
}

// ToTrajectory reshapes flat decoder output to [batch, numJoints, numActions]
func (d *TrajectoryDecoder) ToTrajectory(flat *tensor.Tensor) (*tensor.Tensor, error) {
	if len(flat.Shape) != 2 || flat.Shape[1] != d.numJoints*d.numActions {
		return nil, fmt.Errorf("expected flat trajectories [batch, %d], got shape %v",
			d.numJoints*d.numActions, flat.Shape)
	}
	return tensor.ReshapeAutograd(flat, []int{flat.Shape[0], d.numJoints, d.numActions})
}

// Save writes the decoder as a checkpoint loadable by LoadTrajectoryDecoder
func (d *TrajectoryDecoder) Save(path string) error {
	weights, err := checkpoints.ExtractWeights(d.net.Parameters(), d.spec)
	if err != nil {
		return fmt.Errorf("failed to extract decoder weights: %v", err)
	}

	ckpt := &checkpoints.Checkpoint{
		ModelSpec: d.spec,
		Weights:   weights,
		Metadata: checkpoints.CheckpointMetadata{
			Description: "trajectory decoder",
		},
	}

	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatForPath(path))
	return saver.SaveCheckpoint(ckpt, path)
}

// IsTraining returns true if in training mode. A frozen decoder stays in
// eval mode.
func (d *TrajectoryDecoder) IsTraining() bool {
	return d.net.IsTraining()
}

// LatentDim returns the trajectory latent width the decoder consumes
func (d *TrajectoryDecoder) LatentDim() int {
	return d.latentDim
}

// NumJoints returns the number of joints per trajectory
func (d *TrajectoryDecoder) NumJoints() int {
	return d.numJoints
}

// NumActions returns the number of actions per trajectory
func (d *TrajectoryDecoder) NumActions() int {
	return d.numActions
}
