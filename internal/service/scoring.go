package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
)

const (
	MaxProcessLimit = 1000
	usageMonth      = "2006-01"
)

type ScoringService struct {
	Store     *db.Store
	Pipeline  *scoring.Pipeline
	Box       *secret.Box
	MaxTokens int
	Logger    zerolog.Logger
	Now       func() time.Time
}

type ProcessOptions struct {
	Replace bool
	Limit   int
}

type ProcessResult struct {
	RunID string `json:"run_id"`
	scoring.Summary
}

func (s *ScoringService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Init creates response_result when absent.
func (s *ScoringService) Init(ctx context.Context) error {
	return s.Store.EnsureResultsTable(ctx)
}

// Reset empties response_result. It requires a sample to score against.
func (s *ScoringService) Reset(ctx context.Context) error {
	exists, err := s.Store.TableExists(ctx, models.DatasetSampling)
	if err != nil {
		return err
	}
	if !exists {
		return db.Missing(models.DatasetSampling)
	}
	if err := s.Store.EnsureResultsTable(ctx); err != nil {
		return err
	}
	return s.Store.TruncateResults(ctx)
}

// credential decrypts the stored provider key.
func (s *ScoringService) credential(cfg models.APIConfiguration) (string, error) {
	return decryptKey(s.Box, cfg)
}

func decryptKey(box *secret.Box, cfg models.APIConfiguration) (string, error) {
	if !cfg.HasKey() {
		return "", scoring.ErrMissingCredential
	}
	if box == nil {
		return "", fmt.Errorf("decrypt api key: %w", secret.ErrNoKey)
	}
	key, err := box.Decrypt(*cfg.OpenAIKeyEncrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt api key: %w", err)
	}
	return key, nil
}

// sampleSelect reads the whole sample unless a positive limit is given,
// which is capped at MaxProcessLimit.
func sampleSelect(limit int) db.Select {
	if limit <= 0 {
		return db.Select{}
	}
	if limit > MaxProcessLimit {
		limit = MaxProcessLimit
	}
	return db.Select{Limit: limit}
}

// Process scores every row of sampling_data, or the first opts.Limit rows.
// Configuration is checked before anything is truncated or sent to the model.
func (s *ScoringService) Process(ctx context.Context, opts ProcessOptions) (ProcessResult, error) {
	var out ProcessResult
	if err := s.Store.EnsureResultsTable(ctx); err != nil {
		return out, err
	}

	cfg, err := s.Store.APIConfig(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("load api configuration: %w", err)
	}
	apiKey, err := s.credential(cfg)
	if err != nil {
		return out, err
	}

	rubric, ok, err := s.Store.Criteria(ctx)
	if err != nil {
		return out, fmt.Errorf("load criteria: %w", err)
	}
	if !ok || len(rubric.Rows) == 0 {
		return out, scoring.ErrMissingRubric
	}

	sample, ok, err := s.Store.LoadTable(ctx, models.DatasetSampling, sampleSelect(opts.Limit))
	if err != nil {
		return out, fmt.Errorf("load sampling data: %w", err)
	}
	if !ok {
		return out, db.Missing(models.DatasetSampling)
	}

	var guidance string
	agentCfg, err := s.Store.AgentConfig(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("load agent configuration: %w", err)
	}
	if agentCfg.RubricUnderstanding != nil {
		guidance = *agentCfg.RubricUnderstanding
	}

	if opts.Replace {
		if err := s.Store.TruncateResults(ctx); err != nil {
			return out, err
		}
	}

	label := ai.DefaultModelLabel
	if cfg.Model != nil && *cfg.Model != "" {
		label = *cfg.Model
	}

	out.RunID, err = s.Store.CreateRun(ctx, db.RunRunning)
	if err != nil {
		return out, fmt.Errorf("create run: %w", err)
	}

	sum, runErr := s.Pipeline.Run(ctx, scoring.Batch{
		Credential: apiKey,
		Model:      ai.ModelID(label),
		MaxTokens:  s.MaxTokens,
		Rubric:     rubric,
		Guidance:   guidance,
		Records:    scoring.Records(sample),
	}, s.Store.UpsertResult)
	out.Summary = sum

	// the run record and usage must land even when the request was cancelled
	bg := context.WithoutCancel(ctx)
	if sum.Tokens > 0 {
		if err := s.Store.AddUsage(bg, s.now().UTC().Format(usageMonth), int64(sum.Tokens)); err != nil {
			s.Logger.Error().Err(err).Msg("failed to record token usage")
		}
	}
	status := db.RunSuccess
	if runErr != nil {
		status = db.RunFailed
	}
	b, _ := json.Marshal(sum)
	if err := s.Store.FinishRun(bg, out.RunID, status, b); err != nil {
		s.Logger.Error().Err(err).Str("run_id", out.RunID).Msg("failed to finish run")
	}

	if runErr != nil {
		s.Logger.Error().Err(runErr).Str("run_id", out.RunID).Msg("scoring batch failed")
		return out, runErr
	}
	s.Logger.Info().
		Str("run_id", out.RunID).
		Str("model", label).
		Int("processed", sum.Processed).
		Int("degraded", sum.Degraded).
		Int("skipped", sum.Skipped).
		Msg("scoring batch finished")
	return out, nil
}
