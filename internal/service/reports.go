package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/scoring"
)

const (
	ActionReset   = "reset"
	ActionProcess = "process"
)

// Reports derives the numeric report tables from response_result.
type Reports struct {
	Store  *db.Store
	Cache  cache.Cache
	Logger zerolog.Logger
}

// Processed resets processed_data or appends the projection of every
// stored result, optionally replacing what is there.
func (r *Reports) Processed(ctx context.Context, action string, replace bool) (int64, error) {
	switch action {
	case ActionReset:
		if err := r.Store.ResetReport(ctx, db.ProcessedData); err != nil {
			return 0, err
		}
		invalidateInsights(ctx, r.Cache, r.Logger)
		return 0, nil
	case ActionProcess:
	default:
		return 0, fmt.Errorf("unknown action %q", action)
	}

	if err := r.Store.EnsureResultsTable(ctx); err != nil {
		return 0, err
	}
	results, err := r.Store.AllResults(ctx)
	if err != nil {
		return 0, fmt.Errorf("load results: %w", err)
	}
	rows := make([]models.ReportRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, scoring.Project(res))
	}
	n, err := r.Store.AppendProcessed(ctx, rows, replace)
	if err != nil {
		return 0, err
	}
	invalidateInsights(ctx, r.Cache, r.Logger)
	r.Logger.Info().Int64("rows", n).Bool("replace", replace).Msg("processed data built")
	return n, nil
}

// Scoring resets scoring_data or copies processed_data into it.
func (r *Reports) Scoring(ctx context.Context, action string, replace bool) (int64, error) {
	switch action {
	case ActionReset:
		return 0, r.Store.ResetReport(ctx, db.ScoringData)
	case ActionProcess:
	default:
		return 0, fmt.Errorf("unknown action %q", action)
	}
	n, err := r.Store.CopyProcessedToScoring(ctx, replace)
	if err != nil {
		return 0, err
	}
	r.Logger.Info().Int64("rows", n).Bool("replace", replace).Msg("scoring data built")
	return n, nil
}
