package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/weison-t/thereader/internal/models"
)

const (
	RunRunning = "RUNNING"
	RunSuccess = "SUCCESS"
	RunFailed  = "FAILED"
)

func (s *Store) CreateRun(ctx context.Context, status string) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO scoring_runs (id, status, started_at) VALUES ($1, $2, NOW())`, id, status)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE scoring_runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

// LatestRun returns nil when no batch has run yet.
func (s *Store) LatestRun(ctx context.Context) (*models.ScoringRun, error) {
	var r models.ScoringRun
	var summary []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT id::text, status, summary, started_at, finished_at
		FROM scoring_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.ID, &r.Status, &summary, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Summary = summary
	return &r, nil
}
