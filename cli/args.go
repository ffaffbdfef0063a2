package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mtoivainen/latentreach/checkpoints"
)

// ArgumentsFilename is the file each run writes its configuration to. Eval
// reads it back so a checkpoint can be scored without retyping the flags.
const ArgumentsFilename = "arguments.txt"

// TrainArgs holds every train flag. The struct round-trips through
// arguments.txt via SaveArguments and LoadArguments.
type TrainArgs struct {
	Dataset     string
	VAEName     string
	LatentDim   int
	NumJoints   int
	NumActions  int
	ModelIndex  int
	PolicyName  string
	NumEpochs   int
	BatchSize   int
	LR          float64
	NumWorkers  int
	GLatent     int
	Debug       bool
	Arm         string
	ModelsDir   string
	ResultsDir  string
	PlotEvery   int
	Format      string
	Seed        int64
	LRStep      int
	LRGamma     float64
	Patience    int
	HistoryDB   string
	PlotService string
}

// DefaultTrainArgs returns the train command defaults. Flag registration and
// LoadArguments both start from this value.
func DefaultTrainArgs() TrainArgs {
	return TrainArgs{
		LatentDim:  5,
		NumJoints:  7,
		NumActions: 24,
		ModelIndex: 1,
		NumEpochs:  1000,
		BatchSize:  124,
		LR:         1e-3,
		NumWorkers: 16,
		GLatent:    10,
		ModelsDir:  ".",
		ResultsDir: "./results",
		PlotEvery:  1,
		Format:     "json",
		Seed:       1,
	}
}

// Validate checks the arguments for values no run can proceed with.
func (a TrainArgs) Validate() error {
	if a.ModelIndex <= 0 {
		return fmt.Errorf("model-index must be greater than zero, got %d", a.ModelIndex)
	}
	if a.GLatent <= 0 {
		return fmt.Errorf("g-latent must be positive, got %d", a.GLatent)
	}
	if a.LatentDim <= 0 {
		return fmt.Errorf("latent-dim must be positive, got %d", a.LatentDim)
	}
	if a.NumJoints <= 0 {
		return fmt.Errorf("num-joints must be positive, got %d", a.NumJoints)
	}
	if a.NumActions <= 0 {
		return fmt.Errorf("num-actions must be positive, got %d", a.NumActions)
	}
	if a.NumEpochs <= 0 {
		return fmt.Errorf("num-epochs must be positive, got %d", a.NumEpochs)
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", a.BatchSize)
	}
	if a.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %g", a.LR)
	}
	if a.NumWorkers < 0 {
		return fmt.Errorf("num-workers must not be negative, got %d", a.NumWorkers)
	}
	if _, err := checkpoints.ParseFormat(a.Format); err != nil {
		return fmt.Errorf("invalid checkpoint-format: %w", err)
	}
	return nil
}

// pairs maps flag names to their string representation. The keys double as
// the line keys in arguments.txt.
func (a TrainArgs) pairs() map[string]string {
	return map[string]string{
		"dataset":           a.Dataset,
		"vae-name":          a.VAEName,
		"latent-dim":        strconv.Itoa(a.LatentDim),
		"num-joints":        strconv.Itoa(a.NumJoints),
		"num-actions":       strconv.Itoa(a.NumActions),
		"model-index":       strconv.Itoa(a.ModelIndex),
		"policy-name":       a.PolicyName,
		"num-epochs":        strconv.Itoa(a.NumEpochs),
		"batch-size":        strconv.Itoa(a.BatchSize),
		"lr":                strconv.FormatFloat(a.LR, 'g', -1, 64),
		"num-workers":       strconv.Itoa(a.NumWorkers),
		"g-latent":          strconv.Itoa(a.GLatent),
		"debug":             strconv.FormatBool(a.Debug),
		"arm":               a.Arm,
		"models-dir":        a.ModelsDir,
		"results-dir":       a.ResultsDir,
		"plot-every":        strconv.Itoa(a.PlotEvery),
		"checkpoint-format": a.Format,
		"seed":              strconv.FormatInt(a.Seed, 10),
		"lr-step":           strconv.Itoa(a.LRStep),
		"lr-gamma":          strconv.FormatFloat(a.LRGamma, 'g', -1, 64),
		"patience":          strconv.Itoa(a.Patience),
		"history-db":        a.HistoryDB,
		"plot-service":      a.PlotService,
	}
}

// FormatArguments renders the arguments as sorted "key value" lines. A flag
// with an empty value renders as a bare key.
func FormatArguments(args TrainArgs) string {
	pairs := args.pairs()
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if v := pairs[k]; v != "" {
			fmt.Fprintf(&b, "%s %s\n", k, v)
		} else {
			fmt.Fprintf(&b, "%s\n", k)
		}
	}
	return b.String()
}

// SaveArguments writes the run configuration to path.
func SaveArguments(args TrainArgs, path string) error {
	if err := os.WriteFile(path, []byte(FormatArguments(args)), 0644); err != nil {
		return fmt.Errorf("failed to write arguments file: %w", err)
	}
	return nil
}

// LoadArguments reads an arguments file written by SaveArguments. Missing
// keys keep their defaults; unknown keys are an error.
func LoadArguments(path string) (TrainArgs, error) {
	args := DefaultTrainArgs()

	data, err := os.ReadFile(path)
	if err != nil {
		return args, fmt.Errorf("failed to read arguments file: %w", err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		// A bare key is a flag whose value was empty.
		key, value, _ := strings.Cut(line, " ")
		if err := args.set(key, value); err != nil {
			return args, fmt.Errorf("arguments line %d: %w", i+1, err)
		}
	}
	return args, nil
}

func (a *TrainArgs) set(key, value string) error {
	var err error
	switch key {
	case "dataset":
		a.Dataset = value
	case "vae-name":
		a.VAEName = value
	case "latent-dim":
		a.LatentDim, err = strconv.Atoi(value)
	case "num-joints":
		a.NumJoints, err = strconv.Atoi(value)
	case "num-actions":
		a.NumActions, err = strconv.Atoi(value)
	case "model-index":
		a.ModelIndex, err = strconv.Atoi(value)
	case "policy-name":
		a.PolicyName = value
	case "num-epochs":
		a.NumEpochs, err = strconv.Atoi(value)
	case "batch-size":
		a.BatchSize, err = strconv.Atoi(value)
	case "lr":
		a.LR, err = strconv.ParseFloat(value, 64)
	case "num-workers":
		a.NumWorkers, err = strconv.Atoi(value)
	case "g-latent":
		a.GLatent, err = strconv.Atoi(value)
	case "debug":
		a.Debug, err = strconv.ParseBool(value)
	case "arm":
		a.Arm = value
	case "models-dir":
		a.ModelsDir = value
	case "results-dir":
		a.ResultsDir = value
	case "plot-every":
		a.PlotEvery, err = strconv.Atoi(value)
	case "checkpoint-format":
		a.Format = value
	case "seed":
		a.Seed, err = strconv.ParseInt(value, 10, 64)
	case "lr-step":
		a.LRStep, err = strconv.Atoi(value)
	case "lr-gamma":
		a.LRGamma, err = strconv.ParseFloat(value, 64)
	case "patience":
		a.Patience, err = strconv.Atoi(value)
	case "history-db":
		a.HistoryDB = value
	case "plot-service":
		a.PlotService = value
	default:
		return fmt.Errorf("unknown argument %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
