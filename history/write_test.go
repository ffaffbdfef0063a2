package history

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := testTime(0)
	run := Run{
		ID:         NewRunID(),
		PolicyName: "reach_policy",
		VAEName:    "model_v1",
		Dataset:    "latents.json",
		Arm:        "arms/default.yaml",
		StartedAt:  started,
		Arguments:  "batch-size 124\nlr 0.001\n",
	}
	require.NoError(t, s.BeginRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "reach_policy", got.PolicyName)
	assert.Equal(t, "model_v1", got.VAEName)
	assert.Equal(t, "latents.json", got.Dataset)
	assert.Equal(t, "arms/default.yaml", got.Arm)
	assert.Equal(t, run.Arguments, got.Arguments)
	assert.True(t, got.StartedAt.Equal(started), "StartedAt should round-trip")

	// Fresh run: no epochs, no best checkpoint, not finished
	assert.Equal(t, 0, got.Epochs)
	assert.Equal(t, -1, got.BestEpoch)
	assert.False(t, got.HasBest())
	assert.False(t, got.Finished())
}

func TestBeginRun_EmptyID(t *testing.T) {
	s := openTestStore(t)

	err := s.BeginRun(context.Background(), Run{PolicyName: "p"})
	assert.Error(t, err)
}

func TestBeginRun_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", PolicyName: "p", StartedAt: testTime(0)}
	require.NoError(t, s.BeginRun(ctx, run))
	assert.Error(t, s.BeginRun(ctx, run), "duplicate run ID should be rejected")
}

func TestRecordEpoch_Series(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", PolicyName: "p", StartedAt: testTime(0)}
	require.NoError(t, s.BeginRun(ctx, run))

	records := []EpochRecord{
		{RunID: "run-1", Epoch: 0, TrainLoss: 0.9, ValidLoss: 1.1, LR: 1e-3, Duration: 1500 * time.Millisecond},
		{RunID: "run-1", Epoch: 1, TrainLoss: 0.5, ValidLoss: math.NaN(), LR: 1e-3, Duration: 1400 * time.Millisecond},
		{RunID: "run-1", Epoch: 2, TrainLoss: 0.3, ValidLoss: 0.4, LR: 5e-4, Duration: 1450 * time.Millisecond},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordEpoch(ctx, rec))
	}

	series, err := s.EpochSeries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, 0, series[0].Epoch)
	assert.Equal(t, 0.9, series[0].TrainLoss)
	assert.Equal(t, 1.1, series[0].ValidLoss)
	assert.Equal(t, 1500*time.Millisecond, series[0].Duration)

	// Skipped validation stores NULL and reads back as NaN
	assert.True(t, math.IsNaN(series[1].ValidLoss))
	assert.Equal(t, 5e-4, series[2].LR)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Epochs)
}

func TestRecordEpoch_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", PolicyName: "p", StartedAt: testTime(0)}
	require.NoError(t, s.BeginRun(ctx, run))

	first := EpochRecord{RunID: "run-1", Epoch: 0, TrainLoss: 0.9, ValidLoss: 1.0, LR: 1e-3}
	require.NoError(t, s.RecordEpoch(ctx, first))

	second := first
	second.TrainLoss = 123.0
	require.NoError(t, s.RecordEpoch(ctx, second), "re-recording an epoch should not error")

	series, err := s.EpochSeries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 0.9, series[0].TrainLoss, "first write should win")
}

func TestRecordEpoch_UnknownRun(t *testing.T) {
	s := openTestStore(t)

	err := s.RecordEpoch(context.Background(), EpochRecord{RunID: "missing", Epoch: 0, TrainLoss: 1})
	assert.Error(t, err, "foreign key should reject epochs for unknown runs")
}

func TestRecordBest_And_FinishRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", PolicyName: "p", StartedAt: testTime(0)}
	require.NoError(t, s.BeginRun(ctx, run))

	require.NoError(t, s.RecordBest(ctx, "run-1", 4, 0.0123, "results/p/p_best.json"))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.HasBest())
	assert.Equal(t, 4, got.BestEpoch)
	assert.Equal(t, 0.0123, got.BestValidLoss)
	assert.Equal(t, "results/p/p_best.json", got.CheckpointPath)
	assert.False(t, got.Finished())

	finished := testTime(30)
	require.NoError(t, s.FinishRun(ctx, "run-1", finished))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.True(t, got.FinishedAt.Equal(finished), "FinishedAt should round-trip")
}

func TestDeleteCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", PolicyName: "p", StartedAt: testTime(0)}
	require.NoError(t, s.BeginRun(ctx, run))
	require.NoError(t, s.RecordEpoch(ctx, EpochRecord{RunID: "run-1", Epoch: 0, TrainLoss: 1, ValidLoss: 1, LR: 1e-3}))

	_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", "run-1")
	require.NoError(t, err)

	series, err := s.EpochSeries(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, series, "epochs should cascade on run delete")
}
