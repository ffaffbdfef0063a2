package cli

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mtoivainen/latentreach/checkpoints"
	"github.com/mtoivainen/latentreach/dataset"
	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/plots"
	"github.com/mtoivainen/latentreach/policy"
)

// EvalOptions holds the eval command configuration.
type EvalOptions struct {
	*RootOptions
	ResultsDir string
	PolicyName string
	Dataset    string
	Scatter    bool
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a trained policy's best checkpoint",
		Long: `Eval reads the run configuration saved by train, loads the best checkpoint
and the frozen decoder it was trained against, and reports pose regression
metrics over the full dataset.`,
		Example: `  latentreach eval --policy-name reach_policy
  latentreach eval --policy-name reach_policy --dataset data/heldout.json --scatter`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ResultsDir, "results-dir", "./results", "directory holding run outputs")
	f.StringVar(&opts.PolicyName, "policy-name", "", "name of the trained policy")
	f.StringVar(&opts.Dataset, "dataset", "", "dataset to evaluate on, defaults to the training dataset")
	f.BoolVar(&opts.Scatter, "scatter", false, "write scatter_eval.png next to the checkpoint")
	_ = cmd.MarkFlagRequired("policy-name")

	return cmd
}

func runEval(cmd *cobra.Command, opts *EvalOptions) error {
	runDir := filepath.Join(opts.ResultsDir, opts.PolicyName)

	args, err := LoadArguments(filepath.Join(runDir, ArgumentsFilename))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run arguments", err)
	}

	datasetPath := args.Dataset
	if opts.Dataset != "" {
		datasetPath = opts.Dataset
	}
	slog.Info("loading dataset", "path", datasetPath)
	file, err := dataset.Load(datasetPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load dataset", err)
	}
	if file.GLatent != args.GLatent {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("dataset latent width %d does not match the run's g-latent %d", file.GLatent, args.GLatent))
	}
	ds, err := file.ToDataset()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build dataset", err)
	}

	format, err := checkpoints.ParseFormat(args.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid checkpoint format in run arguments", err)
	}
	bestPath := filepath.Join(runDir, fmt.Sprintf("%s_best.%s", args.PolicyName, format.Extension()))
	slog.Info("loading best checkpoint", "path", bestPath)
	predictor, err := policy.LoadPredictor(bestPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load policy checkpoint", err)
	}
	if predictor.InputDim() != file.GLatent {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("policy input width %d does not match dataset latent width %d", predictor.InputDim(), file.GLatent))
	}

	arm, err := loadArm(args.Arm, args.NumJoints)
	if err != nil {
		return err
	}
	decoderPath := policy.DecoderPath(args.ModelsDir, args.VAEName, args.ModelIndex, format)
	decoder, err := policy.LoadTrajectoryDecoder(decoderPath, args.NumJoints, args.NumActions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load trajectory decoder", err)
	}

	pipe, err := policy.NewPipeline(predictor, decoder, arm)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compose pipeline", err)
	}
	pipe.Eval()

	loader := nn.NewDataLoader(ds, args.BatchSize, false)
	predictions, targets, err := nn.CollectPredictions(pipe, loader)
	if err != nil {
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	predData, err := predictions.GetFloat32Data()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read predictions", err)
	}
	targetData, err := targets.GetFloat32Data()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read targets", err)
	}

	metrics := nn.CalculateRegressionMetrics(predData, targetData, len(predData))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policy:                 %s\n", args.PolicyName)
	fmt.Fprintf(out, "Samples:                %d\n", ds.Len())
	fmt.Fprintf(out, "MSE:                    %.6f\n", metrics.MSE)
	fmt.Fprintf(out, "MAE:                    %.6f\n", metrics.MAE)
	fmt.Fprintf(out, "RMSE:                   %.6f\n", metrics.RMSE)
	fmt.Fprintf(out, "R2:                     %.6f\n", metrics.R2)
	fmt.Fprintf(out, "Average error distance: %.6f\n", math.Sqrt(metrics.MSE))

	if opts.Scatter {
		collector := plots.NewCollector(args.PolicyName)
		collector.RecordTrainPoses(tensorRows(targets), tensorRows(predictions))
		pd := collector.ScatterPlot(plots.TrainSplit)
		pd.Title = "End-effector positions (eval)"
		scatterPath := filepath.Join(runDir, "scatter_eval.png")
		if err := plots.SavePNG(pd, scatterPath); err != nil {
			return WrapExitError(ExitFailure, "failed to write scatter plot", err)
		}
		fmt.Fprintf(out, "Scatter plot:           %s\n", scatterPath)
	}
	return nil
}
