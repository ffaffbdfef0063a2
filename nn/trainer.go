package nn

import (
	"fmt"
	"math"
	"time"

	"github.com/mtoivainen/latentreach/tensor"
)

// BatchSource yields batches one epoch at a time. Next returns (nil, nil)
// when the epoch is exhausted; Reset starts the next epoch.
type BatchSource interface {
	Next() (*Batch, error)
	Reset()
	Len() int
}

// TrainingConfig holds configuration for training
type TrainingConfig struct {
	Epochs        int
	PrintEvery    int  // Print training stats every N batches (0 = quiet)
	ValidateEvery int  // Run validation every N epochs (0 = no validation)
	EarlyStopping bool // Enable early stopping based on validation loss
	Patience      int  // Number of epochs to wait for improvement before stopping
	ShowProgress  bool // Render a per-epoch progress bar
}

// TrainingMetrics holds metrics for a single epoch
type TrainingMetrics struct {
	Epoch         int
	TrainLoss     float64
	ValidLoss     float64
	ErrorDistance float64 // sqrt of the validation MSE, distance in pose space
	LearningRate  float64
	Improved      bool
	EpochDuration time.Duration
	BatchCount    int
}

// EpochCallback observes each completed epoch. Callbacks feed plot
// collection and run history; an error aborts training.
type EpochCallback func(metrics TrainingMetrics) error

// Trainer manages the training process
type Trainer struct {
	model       Module
	optimizer   Optimizer
	criterion   Loss
	scheduler   LRScheduler
	checkpoints *CheckpointManager
	config      TrainingConfig
	metrics     []TrainingMetrics
	callbacks   []EpochCallback
	baseLR      float64
}

// NewTrainer creates a new Trainer
func NewTrainer(model Module, optimizer Optimizer, criterion Loss, config TrainingConfig) *Trainer {
	return &Trainer{
		model:     model,
		optimizer: optimizer,
		criterion: criterion,
		config:    config,
		metrics:   make([]TrainingMetrics, 0),
		baseLR:    optimizer.GetLR(),
	}
}

// SetScheduler attaches a learning rate scheduler, applied after each epoch
func (t *Trainer) SetScheduler(scheduler LRScheduler) {
	t.scheduler = scheduler
}

// SetCheckpointManager attaches a checkpoint manager that saves on
// validation improvement and at the configured periodic interval
func (t *Trainer) SetCheckpointManager(cm *CheckpointManager) {
	t.checkpoints = cm
}

// AddEpochCallback registers a callback invoked after every epoch
func (t *Trainer) AddEpochCallback(cb EpochCallback) {
	t.callbacks = append(t.callbacks, cb)
}

// Metrics returns the per-epoch metrics recorded so far
func (t *Trainer) Metrics() []TrainingMetrics {
	return t.metrics
}

// Train runs the complete training loop
func (t *Trainer) Train(trainLoader, validLoader BatchSource) error {
	if t.config.Epochs <= 0 {
		return fmt.Errorf("training requires a positive epoch count, got %d", t.config.Epochs)
	}

	bestValidLoss := math.Inf(1)
	patienceCounter := 0
	step := 0

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		epochStart := time.Now()

		// Training phase
		t.model.Train()
		trainLoss, batchCount, err := t.trainEpoch(trainLoader, epoch, &step)
		if err != nil {
			return fmt.Errorf("training epoch %d failed: %v", epoch, err)
		}

		metrics := TrainingMetrics{
			Epoch:         epoch,
			TrainLoss:     trainLoss,
			ValidLoss:     math.NaN(),
			ErrorDistance: math.NaN(),
			LearningRate:  t.optimizer.GetLR(),
			EpochDuration: time.Since(epochStart),
			BatchCount:    batchCount,
		}

		// Validation phase
		validated := validLoader != nil && t.config.ValidateEvery > 0 && (epoch+1)%t.config.ValidateEvery == 0
		if validated {
			t.model.Eval()
			validLoss, err := t.validateEpoch(validLoader)
			if err != nil {
				return fmt.Errorf("validation epoch %d failed: %v", epoch, err)
			}

			metrics.ValidLoss = validLoss
			metrics.ErrorDistance = math.Sqrt(validLoss)

			if validLoss < bestValidLoss {
				bestValidLoss = validLoss
				patienceCounter = 0
				metrics.Improved = true
			} else {
				patienceCounter++
			}

			if t.checkpoints != nil {
				if metrics.Improved {
					if _, err := t.checkpoints.SaveBestCheckpoint(epoch, step, float32(validLoss)); err != nil {
						return fmt.Errorf("failed to save best checkpoint: %v", err)
					}
				}
				if _, err := t.checkpoints.SavePeriodicCheckpoint(epoch, step, float32(validLoss)); err != nil {
					return fmt.Errorf("failed to save periodic checkpoint: %v", err)
				}
			}
		}

		// Adjust learning rate for the next epoch
		if t.scheduler != nil {
			var newLR float64
			if plateau, ok := t.scheduler.(*ReduceLROnPlateauScheduler); ok {
				if validated {
					newLR = plateau.Step(metrics.ValidLoss, t.optimizer.GetLR())
				} else {
					newLR = t.optimizer.GetLR()
				}
			} else {
				newLR = t.scheduler.GetLR(epoch+1, step, t.baseLR)
			}
			t.optimizer.SetLR(newLR)
		}

		// Store metrics
		t.metrics = append(t.metrics, metrics)

		// Print progress
		t.printEpochSummary(metrics, validated)

		for _, cb := range t.callbacks {
			if err := cb(metrics); err != nil {
				return fmt.Errorf("epoch callback failed: %v", err)
			}
		}

		// Early stopping logic
		if validated && t.config.EarlyStopping && t.config.Patience > 0 && patienceCounter >= t.config.Patience {
			fmt.Printf("Early stopping triggered after %d epochs\n", epoch+1)
			break
		}
	}

	return nil
}

// trainEpoch runs one training epoch
func (t *Trainer) trainEpoch(trainLoader BatchSource, epoch int, step *int) (float64, int, error) {
	var totalLoss float64
	var totalSamples int
	var batchCount int

	trainLoader.Reset()

	var progress *ProgressBar
	if t.config.ShowProgress {
		progress = NewProgressBar(fmt.Sprintf("Epoch %d/%d", epoch+1, t.config.Epochs), trainLoader.Len())
	}

	for {
		batch, err := trainLoader.Next()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to load batch: %v", err)
		}
		if batch == nil {
			break // End of epoch
		}

		// Zero gradients
		t.optimizer.ZeroGrad()

		// Forward pass
		output, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, 0, fmt.Errorf("forward pass failed: %v", err)
		}

		// Compute loss
		loss, err := t.criterion.Forward(output, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("loss computation failed: %v", err)
		}

		lossValue, err := loss.Item()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get loss value: %v", err)
		}

		// The loss value is computed outside the graph; backward starts
		// from the model output seeded with dL/doutput
		seed, err := t.criterion.Backward(output, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("loss gradient failed: %v", err)
		}
		if err := output.Backward(seed); err != nil {
			return 0, 0, fmt.Errorf("backward pass failed: %v", err)
		}

		// Update parameters
		if err := t.optimizer.Step(); err != nil {
			return 0, 0, fmt.Errorf("optimizer step failed: %v", err)
		}

		// Accumulate metrics
		batchSize := batch.Data.Shape[0]
		totalLoss += float64(lossValue.(float32)) * float64(batchSize)
		totalSamples += batchSize
		batchCount++
		*step++

		if progress != nil {
			progress.Update(batchCount, map[string]float64{"loss": totalLoss / float64(totalSamples)})
		} else if t.config.PrintEvery > 0 && batchCount%t.config.PrintEvery == 0 {
			fmt.Printf("Epoch %d, Batch %d: Loss=%.6f\n", epoch+1, batchCount, totalLoss/float64(totalSamples))
		}
	}

	if progress != nil {
		progress.Finish()
	}

	if totalSamples == 0 {
		return 0, 0, fmt.Errorf("training loader produced no batches")
	}

	return totalLoss / float64(totalSamples), batchCount, nil
}

// validateEpoch runs one validation pass. No gradients are consumed: the
// loop never calls Backward or Step.
func (t *Trainer) validateEpoch(validLoader BatchSource) (float64, error) {
	var totalLoss float64
	var totalSamples int

	validLoader.Reset()

	for {
		batch, err := validLoader.Next()
		if err != nil {
			return 0, fmt.Errorf("failed to load batch: %v", err)
		}
		if batch == nil {
			break
		}

		output, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, fmt.Errorf("validation forward pass failed: %v", err)
		}

		loss, err := t.criterion.Forward(output, batch.Labels)
		if err != nil {
			return 0, fmt.Errorf("validation loss computation failed: %v", err)
		}

		lossValue, err := loss.Item()
		if err != nil {
			return 0, fmt.Errorf("failed to get validation loss value: %v", err)
		}

		batchSize := batch.Data.Shape[0]
		totalLoss += float64(lossValue.(float32)) * float64(batchSize)
		totalSamples += batchSize
	}

	if totalSamples == 0 {
		return 0, fmt.Errorf("validation loader produced no batches")
	}

	return totalLoss / float64(totalSamples), nil
}

// Predict runs the model over every batch from the source and returns the
// stacked predictions and labels as [n, width] tensors
func (t *Trainer) Predict(source BatchSource) (*tensor.Tensor, *tensor.Tensor, error) {
	return CollectPredictions(t.model, source)
}

// CollectPredictions runs a model in eval mode over every batch from the
// source and returns the stacked predictions and labels as [n, width]
// tensors. The model's training mode is restored afterwards.
func CollectPredictions(model Module, source BatchSource) (*tensor.Tensor, *tensor.Tensor, error) {
	wasTraining := model.IsTraining()
	model.Eval()
	if wasTraining {
		defer model.Train()
	}

	source.Reset()

	var predData, labelData []float32
	var rows, predWidth, labelWidth int

	for {
		batch, err := source.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load batch: %v", err)
		}
		if batch == nil {
			break
		}

		output, err := model.Forward(batch.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("prediction forward pass failed: %v", err)
		}

		outValues, err := output.GetFloat32Data()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read predictions: %v", err)
		}
		labValues, err := batch.Labels.GetFloat32Data()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read labels: %v", err)
		}

		if rows == 0 {
			predWidth = output.NumElems / output.Shape[0]
			labelWidth = batch.Labels.NumElems / batch.Labels.Shape[0]
		}

		predData = append(predData, outValues...)
		labelData = append(labelData, labValues...)
		rows += batch.Data.Shape[0]
	}

	if rows == 0 {
		return nil, nil, fmt.Errorf("prediction source produced no batches")
	}

	predictions, err := tensor.NewTensor([]int{rows, predWidth}, tensor.Float32, predData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble predictions: %v", err)
	}
	labels, err := tensor.NewTensor([]int{rows, labelWidth}, tensor.Float32, labelData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble labels: %v", err)
	}

	return predictions, labels, nil
}

// printEpochSummary prints a summary of the epoch results
func (t *Trainer) printEpochSummary(metrics TrainingMetrics, validated bool) {
	fmt.Printf("Epoch %d/%d: ", metrics.Epoch+1, t.config.Epochs)
	fmt.Printf("Train Loss=%.6f", metrics.TrainLoss)

	if validated {
		fmt.Printf(", Valid Loss=%.6f", metrics.ValidLoss)
	}
	fmt.Printf(", LR=%.6g, Time=%v\n", metrics.LearningRate, metrics.EpochDuration.Round(time.Millisecond))

	fmt.Printf("Average error distance (training): %.6f\n", math.Sqrt(metrics.TrainLoss))
	if validated {
		fmt.Printf("Average error distance (validation): %.6f\n", metrics.ErrorDistance)
		if metrics.Improved {
			fmt.Printf("Validation loss improved to %.6f\n", metrics.ValidLoss)
		}
	}
}
