package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtoivainen/latentreach/dataset"
	"github.com/mtoivainen/latentreach/history"
	"github.com/mtoivainen/latentreach/policy"
)

// writeReachDataset writes a small synthetic latent dataset to path.
func writeReachDataset(t *testing.T, path string, n, g int) {
	t.Helper()

	file := &dataset.File{Name: "synthetic", GLatent: g}
	for i := 0; i < n; i++ {
		latent := make(dataset.LatentVector, g)
		for j := range latent {
			latent[j] = 0.05 * float32(i%5) * float32(j+1)
		}
		target := []float32{
			0.30 + 0.01*float32(i),
			0.10 - 0.005*float32(i),
			0.40,
		}
		file.Samples = append(file.Samples, dataset.Sample{Latent: latent, Target: target})
	}
	require.NoError(t, dataset.Save(file, path))
}

// writeDecoderCheckpoint saves a fresh decoder where the train command
// expects to find it and returns the models directory.
func writeDecoderCheckpoint(t *testing.T, dir, vaeName string, latentDim, numJoints, numActions int) string {
	t.Helper()

	decoder, err := policy.NewTrajectoryDecoder(latentDim, 8, numJoints, numActions)
	require.NoError(t, err)

	vaeDir := filepath.Join(dir, vaeName)
	require.NoError(t, os.MkdirAll(vaeDir, 0755))
	require.NoError(t, decoder.Save(filepath.Join(vaeDir, "model_1.json")))
	return dir
}

func TestTrainAndEval_EndToEnd(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "latents.json")
	resultsDir := filepath.Join(tmp, "results")
	dbPath := filepath.Join(tmp, "history.db")

	writeReachDataset(t, dataPath, 12, 6)
	modelsDir := writeDecoderCheckpoint(t, filepath.Join(tmp, "models"), "test_vae", 3, 7, 4)

	_, err := executeCommand(t, "train",
		"--dataset", dataPath,
		"--vae-name", "test_vae",
		"--policy-name", "e2e_policy",
		"--latent-dim", "3",
		"--num-actions", "4",
		"--g-latent", "6",
		"--num-epochs", "3",
		"--batch-size", "4",
		"--num-workers", "0",
		"--plot-every", "0",
		"--models-dir", modelsDir,
		"--results-dir", resultsDir,
		"--history-db", dbPath,
		"--lr-gamma", "0.9",
		"--seed", "7",
	)
	require.NoError(t, err)

	runDir := filepath.Join(resultsDir, "e2e_policy")

	args, err := LoadArguments(filepath.Join(runDir, ArgumentsFilename))
	require.NoError(t, err)
	assert.Equal(t, "e2e_policy", args.PolicyName)
	assert.Equal(t, 6, args.GLatent)
	assert.Equal(t, 3, args.LatentDim)
	assert.Equal(t, 0.9, args.LRGamma)

	bestPath := filepath.Join(runDir, "e2e_policy_best.json")
	_, err = os.Stat(bestPath)
	require.NoError(t, err, "expected best checkpoint at %s", bestPath)

	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	runs, err := store.ListRuns(ctx, "e2e_policy", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.True(t, run.Finished())
	assert.True(t, run.HasBest())
	assert.Equal(t, 3, run.Epochs)
	assert.Equal(t, bestPath, run.CheckpointPath)

	series, err := store.EpochSeries(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, series, 3)

	out, err := executeCommand(t, "eval",
		"--results-dir", resultsDir,
		"--policy-name", "e2e_policy",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "MSE:")
	assert.Contains(t, out, "Average error distance:")
	assert.Regexp(t, `Samples:\s+12`, out)
}

func TestTrain_RejectsLatentWidthMismatch(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "latents.json")
	writeReachDataset(t, dataPath, 6, 4)

	_, err := executeCommand(t, "train",
		"--dataset", dataPath,
		"--vae-name", "test_vae",
		"--policy-name", "mismatch_policy",
		"--g-latent", "10",
		"--results-dir", filepath.Join(tmp, "results"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "g-latent")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrain_MissingDecoder(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "latents.json")
	writeReachDataset(t, dataPath, 6, 6)

	_, err := executeCommand(t, "train",
		"--dataset", dataPath,
		"--vae-name", "absent_vae",
		"--policy-name", "no_decoder_policy",
		"--g-latent", "6",
		"--models-dir", tmp,
		"--results-dir", filepath.Join(tmp, "results"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trajectory decoder")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
