package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

const runColumns = `id, policy_name, vae_name, dataset, arm, started_at, finished_at,
	epochs, best_epoch, best_valid_loss, checkpoint_path, arguments`

// GetRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns runs ordered most-recent-first. A non-empty policyName
// filters to that policy; limit > 0 caps the result count.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, policyName string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if policyName != "" {
		query += ` WHERE policy_name = ?`
		args = append(args, policyName)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// EpochSeries returns the per-epoch loss series for a run in epoch order.
// Epochs that skipped validation come back with ValidLoss = NaN.
//
// Returns an empty slice (not nil) if the run has no recorded epochs.
func (s *Store) EpochSeries(ctx context.Context, runID string) ([]EpochRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, epoch, train_loss, valid_loss, lr, duration_ms
		FROM epochs
		WHERE run_id = ?
		ORDER BY epoch ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	series := []EpochRecord{}
	for rows.Next() {
		var (
			rec        EpochRecord
			validLoss  sql.NullFloat64
			durationMS int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Epoch, &rec.TrainLoss, &validLoss, &rec.LR, &durationMS); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		if validLoss.Valid {
			rec.ValidLoss = validLoss.Float64
		} else {
			rec.ValidLoss = math.NaN()
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		series = append(series, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate epochs: %w", err)
	}
	return series, nil
}

// scanRun reads one runs row from either a *sql.Row or *sql.Rows.
func scanRun(sc interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run      Run
		finished sql.NullTime
	)
	err := sc.Scan(
		&run.ID,
		&run.PolicyName,
		&run.VAEName,
		&run.Dataset,
		&run.Arm,
		&run.StartedAt,
		&finished,
		&run.Epochs,
		&run.BestEpoch,
		&run.BestValidLoss,
		&run.CheckpointPath,
		&run.Arguments,
	)
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}
