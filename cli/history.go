package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtoivainen/latentreach/history"
)

const timeFormat = "2006-01-02 15:04:05"

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded training runs",
	}
	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryShowCommand(rootOpts))
	return cmd
}

type historyListOptions struct {
	*RootOptions
	DB     string
	Policy string
	Limit  int
}

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run history database")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "only show runs for this policy")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs, 0 shows all")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistoryList(cmd *cobra.Command, opts *historyListOptions) error {
	store, err := history.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), opts.Policy, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOLICY\tSTARTED\tEPOCHS\tBEST EPOCH\tBEST LOSS\tFINISHED")
	for _, run := range runs {
		bestEpoch, bestLoss := "-", "-"
		if run.HasBest() {
			bestEpoch = strconv.Itoa(run.BestEpoch + 1)
			bestLoss = fmt.Sprintf("%.6f", run.BestValidLoss)
		}
		finished := "no"
		if run.Finished() {
			finished = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			run.ID, run.PolicyName, run.StartedAt.Format(timeFormat),
			run.Epochs, bestEpoch, bestLoss, finished)
	}
	return w.Flush()
}

type historyShowOptions struct {
	*RootOptions
	DB     string
	Epochs bool
}

func newHistoryShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run's record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run history database")
	cmd.Flags().BoolVar(&opts.Epochs, "epochs", false, "include the per-epoch loss series")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistoryShow(cmd *cobra.Command, opts *historyShowOptions, runID string) error {
	store, err := history.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read run", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", run.ID)
	fmt.Fprintf(out, "Policy:      %s\n", run.PolicyName)
	fmt.Fprintf(out, "VAE:         %s\n", run.VAEName)
	fmt.Fprintf(out, "Dataset:     %s\n", run.Dataset)
	if run.Arm != "" {
		fmt.Fprintf(out, "Arm:         %s\n", run.Arm)
	}
	fmt.Fprintf(out, "Started:     %s\n", run.StartedAt.Format(timeFormat))
	finished := "-"
	if run.Finished() {
		finished = run.FinishedAt.Format(timeFormat)
	}
	fmt.Fprintf(out, "Finished:    %s\n", finished)
	fmt.Fprintf(out, "Epochs:      %d\n", run.Epochs)
	if run.HasBest() {
		fmt.Fprintf(out, "Best epoch:  %d\n", run.BestEpoch+1)
		fmt.Fprintf(out, "Best loss:   %.6f\n", run.BestValidLoss)
		fmt.Fprintf(out, "Checkpoint:  %s\n", run.CheckpointPath)
	}

	if opts.Verbose && run.Arguments != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Arguments:")
		for _, line := range strings.Split(strings.TrimRight(run.Arguments, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}

	if opts.Epochs {
		series, err := store.EpochSeries(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read epoch series", err)
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EPOCH\tTRAIN LOSS\tVALID LOSS\tLR\tDURATION")
		for _, rec := range series {
			valid := "-"
			if !math.IsNaN(rec.ValidLoss) {
				valid = fmt.Sprintf("%.6f", rec.ValidLoss)
			}
			fmt.Fprintf(w, "%d\t%.6f\t%s\t%.6g\t%s\n",
				rec.Epoch+1, rec.TrainLoss, valid, rec.LR, rec.Duration.Round(time.Millisecond))
		}
		return w.Flush()
	}
	return nil
}
