package nn

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/layers"
	"github.com/mtoivainen/latentreach/tensor"
)

// CheckpointConfig configures checkpoint saving behavior
type CheckpointConfig struct {
	SaveDirectory   string                       // Directory to save checkpoints
	SaveFrequency   int                          // Save every N epochs (0 = disabled)
	SaveBest        bool                         // Save checkpoint when validation improves
	MaxCheckpoints  int                          // Maximum number of periodic checkpoints to keep (0 = unlimited)
	Format          checkpoints.CheckpointFormat // JSON or gob
	FilenamePattern string                       // Pattern for periodic checkpoint filenames
	BestFilename    string                       // Base name of the best checkpoint, without extension
}

// DefaultCheckpointConfig returns a sensible default configuration
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		SaveDirectory:   "./checkpoints",
		SaveFrequency:   0,
		SaveBest:        true,
		MaxCheckpoints:  10,
		Format:          checkpoints.FormatJSON,
		FilenamePattern: "checkpoint_epoch_%d_step_%d",
		BestFilename:    "best_checkpoint",
	}
}

// CheckpointManager handles checkpoint saving and loading for a model.
// It holds the live parameter tensors, so loading a checkpoint restores
// weights in place.
type CheckpointManager struct {
	config     CheckpointConfig
	modelSpec  *layers.ModelSpec
	parameters []*tensor.Tensor
	optimizer  Optimizer
	saver      *checkpoints.CheckpointSaver
	bestLoss   float32
	bestPath   string
	savedFiles []string // Track periodic checkpoint files for cleanup
}

// NewCheckpointManager creates a new checkpoint manager. The optimizer may
// be nil, in which case no optimizer state is persisted.
func NewCheckpointManager(modelSpec *layers.ModelSpec, parameters []*tensor.Tensor, optimizer Optimizer, config CheckpointConfig) *CheckpointManager {
	if config.BestFilename == "" {
		config.BestFilename = "best_checkpoint"
	}
	return &CheckpointManager{
		config:     config,
		modelSpec:  modelSpec,
		parameters: parameters,
		optimizer:  optimizer,
		saver:      checkpoints.NewCheckpointSaver(config.Format),
		bestLoss:   float32(1e9), // Initialize with high loss
		savedFiles: make([]string, 0),
	}
}

// BestLoss returns the best validation loss seen so far
func (cm *CheckpointManager) BestLoss() float32 {
	return cm.bestLoss
}

// BestPath returns the path of the best checkpoint, or "" before the
// first save
func (cm *CheckpointManager) BestPath() string {
	return cm.bestPath
}

// SaveCheckpoint saves the current model state
func (cm *CheckpointManager) SaveCheckpoint(epoch int, step int, loss float32, description string) error {
	checkpoint, err := cm.createCheckpoint(epoch, step, loss, description)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %v", err)
	}

	filename := cm.generateFilename(epoch, step)
	path := filepath.Join(cm.config.SaveDirectory, filename)

	if err := cm.ensureDirectory(); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	if err := cm.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return fmt.Errorf("failed to save checkpoint: %v", err)
	}

	// Track saved file
	cm.savedFiles = append(cm.savedFiles, path)

	// Cleanup old checkpoints if needed
	if err := cm.cleanupOldCheckpoints(); err != nil {
		// Log warning but don't fail the save operation
		fmt.Printf("Warning: failed to cleanup old checkpoints: %v\n", err)
	}

	return nil
}

// SaveBestCheckpoint saves a checkpoint if the loss improves on the best
// seen so far
func (cm *CheckpointManager) SaveBestCheckpoint(epoch int, step int, loss float32) (bool, error) {
	if !cm.config.SaveBest {
		return false, nil
	}

	if loss >= cm.bestLoss {
		return false, nil
	}
	cm.bestLoss = loss

	description := fmt.Sprintf("Best checkpoint - Loss: %.6f", loss)
	filename := fmt.Sprintf("%s.%s", cm.config.BestFilename, cm.config.Format.Extension())
	path := filepath.Join(cm.config.SaveDirectory, filename)

	checkpoint, err := cm.createCheckpoint(epoch, step, loss, description)
	if err != nil {
		return false, fmt.Errorf("failed to create best checkpoint: %v", err)
	}

	if err := cm.ensureDirectory(); err != nil {
		return false, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	if err := cm.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return false, fmt.Errorf("failed to save best checkpoint: %v", err)
	}

	cm.bestPath = path
	return true, nil
}

// SavePeriodicCheckpoint saves a checkpoint if it's time based on frequency
func (cm *CheckpointManager) SavePeriodicCheckpoint(epoch int, step int, loss float32) (bool, error) {
	if cm.config.SaveFrequency <= 0 {
		return false, nil
	}

	if (epoch+1)%cm.config.SaveFrequency == 0 {
		description := fmt.Sprintf("Periodic checkpoint - Epoch %d", epoch)
		if err := cm.SaveCheckpoint(epoch, step, loss, description); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// LoadCheckpoint loads a checkpoint, restores the model weights in place,
// and returns the checkpoint for state inspection
func (cm *CheckpointManager) LoadCheckpoint(path string) (*checkpoints.Checkpoint, error) {
	checkpoint, err := cm.saver.LoadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %v", err)
	}

	if !cm.modelSpec.Compatible(checkpoint.ModelSpec) {
		return nil, fmt.Errorf("checkpoint model architecture incompatible with current model")
	}

	if err := checkpoints.LoadWeights(checkpoint.Weights, cm.parameters); err != nil {
		return nil, fmt.Errorf("failed to load weights: %v", err)
	}

	cm.bestLoss = checkpoint.TrainingState.BestLoss

	if checkpoint.OptimizerState != nil && cm.optimizer != nil {
		if err := cm.restoreOptimizerState(checkpoint.OptimizerState); err != nil {
			return nil, fmt.Errorf("failed to restore optimizer state: %v", err)
		}
	}

	return checkpoint, nil
}

// createCheckpoint creates a checkpoint from the current model state
func (cm *CheckpointManager) createCheckpoint(epoch int, step int, loss float32, description string) (*checkpoints.Checkpoint, error) {
	if cm.modelSpec == nil {
		return nil, fmt.Errorf("checkpoint manager has no model specification")
	}

	weights, err := checkpoints.ExtractWeights(cm.parameters, cm.modelSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to extract weights: %v", err)
	}

	var learningRate float32
	if cm.optimizer != nil {
		learningRate = float32(cm.optimizer.GetLR())
	}

	checkpoint := &checkpoints.Checkpoint{
		ModelSpec: cm.modelSpec,
		Weights:   weights,
		TrainingState: checkpoints.TrainingState{
			Epoch:        epoch,
			Step:         step,
			LearningRate: learningRate,
			BestLoss:     cm.bestLoss,
			TotalSteps:   step,
		},
		OptimizerState: cm.optimizerState(),
		Metadata: checkpoints.CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "latentreach",
			Description: description,
			Tags:        []string{fmt.Sprintf("epoch_%d", epoch)},
		},
	}

	return checkpoint, nil
}

// optimizerState snapshots the optimizer internals for checkpointing
func (cm *CheckpointManager) optimizerState() *checkpoints.OptimizerState {
	switch opt := cm.optimizer.(type) {
	case *Adam:
		state := &checkpoints.OptimizerState{
			Type: "Adam",
			Parameters: map[string]interface{}{
				"lr":           opt.lr,
				"beta1":        opt.beta1,
				"beta2":        opt.beta2,
				"eps":          opt.eps,
				"weight_decay": opt.weightDecay,
				"step":         int(opt.step),
			},
		}
		state.StateData = append(state.StateData, momentTensors(opt.parameters, opt.m, "m")...)
		state.StateData = append(state.StateData, momentTensors(opt.parameters, opt.v, "v")...)
		return state
	case *SGD:
		state := &checkpoints.OptimizerState{
			Type: "SGD",
			Parameters: map[string]interface{}{
				"lr":           opt.learningRate,
				"momentum":     opt.momentum,
				"weight_decay": opt.weightDecay,
				"dampening":    opt.dampening,
				"nesterov":     opt.nesterov,
			},
		}
		state.StateData = append(state.StateData, momentTensors(opt.parameters, opt.velocities, "momentum")...)
		return state
	default:
		return nil
	}
}

// momentTensors converts per-parameter optimizer tensors to their
// serializable form, indexed by parameter position
func momentTensors(parameters []*tensor.Tensor, moments map[*tensor.Tensor]*tensor.Tensor, stateType string) []checkpoints.OptimizerTensor {
	var out []checkpoints.OptimizerTensor
	for i, param := range parameters {
		moment, exists := moments[param]
		if !exists {
			continue
		}
		data, err := moment.GetFloat32Data()
		if err != nil {
			continue
		}
		out = append(out, checkpoints.OptimizerTensor{
			Name:      fmt.Sprintf("param_%d.%s", i, stateType),
			Shape:     append([]int{}, moment.Shape...),
			Data:      append([]float32{}, data...),
			StateType: stateType,
		})
	}
	return out
}

// restoreOptimizerState loads snapshotted moments back into the optimizer
func (cm *CheckpointManager) restoreOptimizerState(state *checkpoints.OptimizerState) error {
	switch opt := cm.optimizer.(type) {
	case *Adam:
		if state.Type != "Adam" {
			return fmt.Errorf("optimizer type mismatch: checkpoint has %s, model uses Adam", state.Type)
		}
		opt.step = int64(layers.GetIntParam(state.Parameters, "step", 0))
		return restoreMoments(state.StateData, opt.parameters, map[string]map[*tensor.Tensor]*tensor.Tensor{
			"m": opt.m,
			"v": opt.v,
		})
	case *SGD:
		if state.Type != "SGD" {
			return fmt.Errorf("optimizer type mismatch: checkpoint has %s, model uses SGD", state.Type)
		}
		return restoreMoments(state.StateData, opt.parameters, map[string]map[*tensor.Tensor]*tensor.Tensor{
			"momentum": opt.velocities,
		})
	default:
		return nil
	}
}

func restoreMoments(stateData []checkpoints.OptimizerTensor, parameters []*tensor.Tensor, targets map[string]map[*tensor.Tensor]*tensor.Tensor) error {
	for _, st := range stateData {
		moments, tracked := targets[st.StateType]
		if !tracked {
			continue
		}

		var index int
		if _, err := fmt.Sscanf(st.Name, "param_%d", &index); err != nil {
			return fmt.Errorf("malformed optimizer tensor name %q", st.Name)
		}
		if index < 0 || index >= len(parameters) {
			return fmt.Errorf("optimizer tensor %q references unknown parameter", st.Name)
		}

		moment, err := tensor.NewTensor(st.Shape, tensor.Float32, st.Data)
		if err != nil {
			return fmt.Errorf("failed to rebuild optimizer tensor %q: %v", st.Name, err)
		}
		moments[parameters[index]] = moment
	}
	return nil
}

// Helper methods

func (cm *CheckpointManager) generateFilename(epoch int, step int) string {
	pattern := cm.config.FilenamePattern
	if pattern == "" {
		pattern = "checkpoint_epoch_%d_step_%d"
	}

	baseFilename := fmt.Sprintf(pattern, epoch, step)

	return fmt.Sprintf("%s.%s", baseFilename, cm.config.Format.Extension())
}

func (cm *CheckpointManager) ensureDirectory() error {
	return os.MkdirAll(cm.config.SaveDirectory, 0755)
}

func (cm *CheckpointManager) cleanupOldCheckpoints() error {
	if cm.config.MaxCheckpoints <= 0 {
		return nil // No limit
	}

	if len(cm.savedFiles) <= cm.config.MaxCheckpoints {
		return nil // Under limit
	}

	// Remove oldest checkpoints
	toRemove := len(cm.savedFiles) - cm.config.MaxCheckpoints
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(cm.savedFiles[i]); err != nil {
			return fmt.Errorf("failed to remove old checkpoint %s: %v", cm.savedFiles[i], err)
		}
	}

	// Update tracked files
	cm.savedFiles = cm.savedFiles[toRemove:]

	return nil
}
