package history

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BeginRun inserts the run row at training start. The ID must be set (see
// NewRunID); a duplicate ID is an error. Epoch and best-checkpoint fields
// start at their zero state regardless of what the passed Run carries.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("begin run: empty run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, policy_name, vae_name, dataset, arm, started_at, epochs, best_epoch, best_valid_loss, checkpoint_path, arguments)
		VALUES (?, ?, ?, ?, ?, ?, 0, -1, 0, '', ?)
	`,
		run.ID,
		run.PolicyName,
		run.VAEName,
		run.Dataset,
		run.Arm,
		run.StartedAt,
		run.Arguments,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordEpoch appends one epoch to the run's loss series and bumps the
// run's epoch count. Re-recording an existing epoch is a silent no-op so
// that resumed runs stay idempotent.
func (s *Store) RecordEpoch(ctx context.Context, rec EpochRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epochs (run_id, epoch, train_loss, valid_loss, lr, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, epoch) DO NOTHING
	`,
		rec.RunID,
		rec.Epoch,
		rec.TrainLoss,
		nullableLoss(rec.ValidLoss),
		rec.LR,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record epoch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE runs SET epochs = MAX(epochs, ?) WHERE id = ?
	`, rec.Epoch+1, rec.RunID)
	if err != nil {
		return fmt.Errorf("record epoch: %w", err)
	}
	return nil
}

// RecordBest updates the run's best-checkpoint bookkeeping after the
// trainer saves an improved checkpoint.
func (s *Store) RecordBest(ctx context.Context, runID string, epoch int, validLoss float64, checkpointPath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET best_epoch = ?, best_valid_loss = ?, checkpoint_path = ?
		WHERE id = ?
	`, epoch, validLoss, checkpointPath, runID)
	if err != nil {
		return fmt.Errorf("record best: %w", err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ?
	`, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// nullableLoss maps non-finite losses to NULL; NaN cannot be stored in a
// REAL column and means "no value" here anyway.
func nullableLoss(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
