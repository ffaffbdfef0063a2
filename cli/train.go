package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtoivainen/latentreach/async"
	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/dataset"
	"github.com/mtoivainen/latentreach/history"
	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/plots"
	"github.com/mtoivainen/latentreach/policy"
	"github.com/mtoivainen/latentreach/robot"
	"github.com/mtoivainen/latentreach/tensor"
)

// trainFraction is the share of samples assigned to the training split.
const trainFraction = 0.7

// debugSamples is the subset size used when --debug is set.
const debugSamples = 10

// TrainOptions holds the train command configuration.
type TrainOptions struct {
	*RootOptions
	Args TrainArgs
}

// NewTrainCommand creates the train command.
func NewTrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrainOptions{
		RootOptions: rootOpts,
		Args:        DefaultTrainArgs(),
	}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a reach policy on a latent dataset",
		Long: `Train loads a dataset of perception latents paired with target end-effector
positions, composes the named VAE's frozen trajectory decoder with forward
kinematics, and fits a feed-forward policy between the two latent spaces.
The best checkpoint, diagnostic plots and the run configuration are written
under <results-dir>/<policy-name>/.`,
		Example: `  latentreach train --dataset data/latents.json --vae-name reach_vae --policy-name reach_policy
  latentreach train --dataset data/latents.gob --vae-name reach_vae --policy-name quick_check --debug --num-epochs 50`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Args.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			return runTrain(opts)
		},
	}

	registerTrainFlags(cmd, &opts.Args)
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("vae-name")
	_ = cmd.MarkFlagRequired("policy-name")

	return cmd
}

func registerTrainFlags(cmd *cobra.Command, a *TrainArgs) {
	d := DefaultTrainArgs()
	f := cmd.Flags()

	f.StringVar(&a.Dataset, "dataset", d.Dataset, "latent dataset file (.json or .gob)")
	f.StringVar(&a.VAEName, "vae-name", d.VAEName, "name of the trajectory VAE whose decoder to compose")
	f.IntVar(&a.LatentDim, "latent-dim", d.LatentDim, "trajectory latent width")
	f.IntVar(&a.NumJoints, "num-joints", d.NumJoints, "number of arm joints")
	f.IntVar(&a.NumActions, "num-actions", d.NumActions, "trajectory length in actions")
	f.IntVar(&a.ModelIndex, "model-index", d.ModelIndex, "decoder checkpoint index, must be greater than zero")
	f.StringVar(&a.PolicyName, "policy-name", d.PolicyName, "name of the policy to train")
	f.IntVar(&a.NumEpochs, "num-epochs", d.NumEpochs, "number of training epochs")
	f.IntVar(&a.BatchSize, "batch-size", d.BatchSize, "training batch size")
	f.Float64Var(&a.LR, "lr", d.LR, "learning rate")
	f.IntVar(&a.NumWorkers, "num-workers", d.NumWorkers, "batch prefetch workers, 0 loads synchronously")
	f.IntVar(&a.GLatent, "g-latent", d.GLatent, "perception latent width")
	f.BoolVar(&a.Debug, "debug", d.Debug, "train on a random 10-sample subset")
	f.StringVar(&a.Arm, "arm", d.Arm, "arm description file, omit for the built-in default arm")
	f.StringVar(&a.ModelsDir, "models-dir", d.ModelsDir, "directory holding VAE checkpoints")
	f.StringVar(&a.ResultsDir, "results-dir", d.ResultsDir, "directory for run outputs")
	f.IntVar(&a.PlotEvery, "plot-every", d.PlotEvery, "write diagnostic plots every N epochs, 0 disables")
	f.StringVar(&a.Format, "checkpoint-format", d.Format, "checkpoint format, json or gob")
	f.Int64Var(&a.Seed, "seed", d.Seed, "random seed for init, shuffling and splits")
	f.IntVar(&a.LRStep, "lr-step", d.LRStep, "epochs between learning rate decays, 0 disables step decay")
	f.Float64Var(&a.LRGamma, "lr-gamma", d.LRGamma, "decay factor, applied every lr-step epochs or every epoch when lr-step is 0")
	f.IntVar(&a.Patience, "patience", d.Patience, "early stopping patience in epochs, 0 disables")
	f.StringVar(&a.HistoryDB, "history-db", d.HistoryDB, "SQLite run history database, empty disables")
	f.StringVar(&a.PlotService, "plot-service", d.PlotService, "plotting sidecar base URL, empty disables")
}

func runTrain(opts *TrainOptions) error {
	a := opts.Args
	nn.SetRandomSeed(a.Seed)

	trainSet, validSet, err := loadSplits(a)
	if err != nil {
		return err
	}

	trainLoader, cleanup, err := newTrainLoader(trainSet, a)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create batch loader", err)
	}
	defer cleanup()
	// Validation runs as a single full-split batch.
	validLoader := nn.NewDataLoader(validSet, validSet.Len(), false)

	pipe, err := buildPipeline(a)
	if err != nil {
		return err
	}

	optimizer := nn.NewAdamWithDefaults(pipe.Parameters(), a.LR)
	criterion := nn.NewMSELoss("mean")

	runDir := filepath.Join(a.ResultsDir, a.PolicyName)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return WrapExitError(ExitFailure, "failed to create results directory", err)
	}
	if err := SaveArguments(a, filepath.Join(runDir, ArgumentsFilename)); err != nil {
		return WrapExitError(ExitFailure, "failed to save run arguments", err)
	}

	trainer := nn.NewTrainer(pipe, optimizer, criterion, nn.TrainingConfig{
		Epochs:        a.NumEpochs,
		ValidateEvery: 1,
		EarlyStopping: a.Patience > 0,
		Patience:      a.Patience,
		ShowProgress:  opts.Verbose,
	})

	// --lr-step with --lr-gamma decays in steps; --lr-gamma alone decays
	// exponentially every epoch.
	if a.LRStep > 0 {
		trainer.SetScheduler(nn.NewStepLRScheduler(a.LRStep, a.LRGamma))
	} else if a.LRGamma > 0 && a.LRGamma < 1 {
		trainer.SetScheduler(nn.NewExponentialLRScheduler(a.LRGamma))
	}

	format, err := checkpoints.ParseFormat(a.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid checkpoint format", err)
	}
	manager := nn.NewCheckpointManager(pipe.Policy().Spec(), pipe.Policy().Parameters(), optimizer, nn.CheckpointConfig{
		SaveDirectory:   runDir,
		SaveBest:        true,
		Format:          format,
		FilenamePattern: a.PolicyName + "_epoch_%d_step_%d",
		BestFilename:    a.PolicyName + "_best",
	})
	trainer.SetCheckpointManager(manager)

	collector := plots.NewCollector(a.PolicyName)
	if a.PlotEvery <= 0 {
		collector.Disable()
	}
	service := newPlotService(a.PlotService)

	ctx := context.Background()
	store, runID, err := beginHistory(ctx, a)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	trainer.AddEpochCallback(func(m nn.TrainingMetrics) error {
		collector.RecordEpoch(m.Epoch, m.TrainLoss, m.ValidLoss)

		if a.PlotEvery > 0 && (m.Epoch+1)%a.PlotEvery == 0 {
			if err := collectDiagnostics(collector, trainer, pipe, trainLoader, validLoader); err != nil {
				return err
			}
			if err := plots.WriteEpochPlots(collector, runDir); err != nil {
				return fmt.Errorf("failed to write plots: %w", err)
			}
			pushPlots(service, collector)
		}

		if store != nil {
			rec := history.EpochRecord{
				RunID:     runID,
				Epoch:     m.Epoch,
				TrainLoss: m.TrainLoss,
				ValidLoss: m.ValidLoss,
				LR:        m.LearningRate,
				Duration:  m.EpochDuration,
			}
			if err := store.RecordEpoch(ctx, rec); err != nil {
				return fmt.Errorf("failed to record epoch: %w", err)
			}
			if m.Improved {
				if err := store.RecordBest(ctx, runID, m.Epoch, m.ValidLoss, manager.BestPath()); err != nil {
					return fmt.Errorf("failed to record best checkpoint: %w", err)
				}
			}
		}
		return nil
	})

	slog.Info("training",
		"policy", a.PolicyName,
		"epochs", a.NumEpochs,
		"train_samples", trainSet.Len(),
		"valid_samples", validSet.Len(),
	)
	if err := trainer.Train(trainLoader, validLoader); err != nil {
		return WrapExitError(ExitFailure, "training failed", err)
	}

	if store != nil {
		if err := store.FinishRun(ctx, runID, time.Now()); err != nil {
			return WrapExitError(ExitFailure, "failed to finish run record", err)
		}
		slog.Info("run recorded", "id", runID)
	}

	if manager.BestPath() != "" {
		fmt.Printf("Best checkpoint: %s (validation loss %.6f)\n", manager.BestPath(), manager.BestLoss())
	}
	return nil
}

// loadSplits loads the dataset, applies debug subsetting, and returns the
// train and validation splits.
func loadSplits(a TrainArgs) (nn.Dataset, nn.Dataset, error) {
	slog.Info("loading dataset", "path", a.Dataset)
	file, err := dataset.Load(a.Dataset)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load dataset", err)
	}
	if file.GLatent != a.GLatent {
		return nil, nil, NewExitError(ExitCommandError,
			fmt.Sprintf("dataset latent width %d does not match --g-latent %d", file.GLatent, a.GLatent))
	}

	full, err := file.ToDataset()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to build dataset", err)
	}

	var ds nn.Dataset = full
	if a.Debug {
		subset, err := nn.NewRandomSubsetDataset(full, debugSamples)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to build debug subset", err)
		}
		ds = subset
		slog.Info("debug mode", "samples", ds.Len())
	}

	trainSet, validSet, err := nn.RandomSplit(ds, trainFraction)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to split dataset", err)
	}
	slog.Debug("dataset split", "train", trainSet.Len(), "valid", validSet.Len())
	return trainSet, validSet, nil
}

// newTrainLoader returns the training batch source and a cleanup function.
// With workers the async loader prefetches batches in the background.
func newTrainLoader(trainSet nn.Dataset, a TrainArgs) (nn.BatchSource, func(), error) {
	if a.NumWorkers > 0 {
		loader, err := async.NewLoader(trainSet, async.Config{
			BatchSize: a.BatchSize,
			Shuffle:   true,
			Workers:   a.NumWorkers,
			Seed:      a.Seed,
		})
		if err != nil {
			return nil, nil, err
		}
		return loader, loader.Stop, nil
	}
	return nn.NewDataLoader(trainSet, a.BatchSize, true), func() {}, nil
}

// buildPipeline loads the arm and frozen decoder and composes them with a
// fresh policy network.
func buildPipeline(a TrainArgs) (*policy.Pipeline, error) {
	arm, err := loadArm(a.Arm, a.NumJoints)
	if err != nil {
		return nil, err
	}

	format, err := checkpoints.ParseFormat(a.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid checkpoint format", err)
	}
	decoderPath := policy.DecoderPath(a.ModelsDir, a.VAEName, a.ModelIndex, format)
	slog.Info("loading trajectory decoder", "path", decoderPath)
	decoder, err := policy.LoadTrajectoryDecoder(decoderPath, a.NumJoints, a.NumActions)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load trajectory decoder", err)
	}
	if decoder.LatentDim() != a.LatentDim {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("decoder latent width %d does not match --latent-dim %d", decoder.LatentDim(), a.LatentDim))
	}

	predictor, err := policy.NewPredictor(a.GLatent, a.LatentDim, policy.DefaultHidden)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create policy network", err)
	}

	pipe, err := policy.NewPipeline(predictor, decoder, arm)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to compose pipeline", err)
	}
	return pipe, nil
}

func loadArm(path string, numJoints int) (*robot.Arm, error) {
	if path == "" {
		arm := robot.DefaultArm()
		if arm.NumJoints() != numJoints {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("default arm has %d joints, --num-joints is %d; pass --arm for a different arm", arm.NumJoints(), numJoints))
		}
		return arm, nil
	}

	arm, err := robot.LoadArm(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load arm", err)
	}
	if arm.NumJoints() != numJoints {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("arm %s has %d joints, --num-joints is %d", path, arm.NumJoints(), numJoints))
	}
	return arm, nil
}

func newPlotService(baseURL string) *plots.Service {
	if baseURL == "" {
		return nil
	}
	config := plots.DefaultServiceConfig()
	config.BaseURL = baseURL
	service := plots.NewService(config)
	service.Enable()
	if err := service.CheckHealth(); err != nil {
		slog.Warn("plotting service unavailable, pushes may fail", "url", baseURL, "error", err)
	}
	return service
}

func beginHistory(ctx context.Context, a TrainArgs) (*history.Store, string, error) {
	if a.HistoryDB == "" {
		return nil, "", nil
	}

	store, err := history.Open(a.HistoryDB)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "failed to open history database", err)
	}

	runID := history.NewRunID()
	run := history.Run{
		ID:         runID,
		PolicyName: a.PolicyName,
		VAEName:    a.VAEName,
		Dataset:    a.Dataset,
		Arm:        a.Arm,
		StartedAt:  time.Now(),
		Arguments:  FormatArguments(a),
	}
	if err := store.BeginRun(ctx, run); err != nil {
		store.Close()
		return nil, "", WrapExitError(ExitFailure, "failed to record run", err)
	}
	slog.Debug("history run started", "id", runID, "db", a.HistoryDB)
	return store, runID, nil
}

// collectDiagnostics refreshes the collector's scatter and histogram data
// from the current model state.
func collectDiagnostics(collector *plots.Collector, trainer *nn.Trainer, pipe *policy.Pipeline, trainLoader, validLoader nn.BatchSource) error {
	trainPred, trainTargets, err := trainer.Predict(trainLoader)
	if err != nil {
		return fmt.Errorf("failed to collect training poses: %w", err)
	}
	collector.RecordTrainPoses(tensorRows(trainTargets), tensorRows(trainPred))

	validPred, validTargets, err := trainer.Predict(validLoader)
	if err != nil {
		return fmt.Errorf("failed to collect validation poses: %w", err)
	}
	collector.RecordValidationPoses(tensorRows(validTargets), tensorRows(validPred))

	latents, err := pipe.Latents(trainLoader)
	if err != nil {
		return fmt.Errorf("failed to collect latents: %w", err)
	}
	collector.RecordLatents(tensorRows(latents))
	return nil
}

// tensorRows converts a [n, width] tensor into per-row float64 slices.
func tensorRows(t *tensor.Tensor) [][]float64 {
	if t == nil || len(t.Shape) != 2 {
		return nil
	}
	data, err := t.GetFloat32Data()
	if err != nil {
		return nil
	}

	width := t.Shape[1]
	rows := make([][]float64, t.Shape[0])
	for i := range rows {
		row := make([]float64, width)
		for j := 0; j < width; j++ {
			row[j] = float64(data[i*width+j])
		}
		rows[i] = row
	}
	return rows
}

func pushPlots(service *plots.Service, collector *plots.Collector) {
	if service == nil {
		return
	}
	for name, resp := range service.SendAll(collector) {
		if !resp.Success {
			slog.Debug("plot push failed", "plot", name, "message", resp.Message)
		}
	}
}
