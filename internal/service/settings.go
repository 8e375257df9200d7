package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
)

var ErrInvalidModel = errors.New("unsupported model")

// Prober checks provider credentials without scoring anything.
type Prober interface {
	ProbeKey(ctx context.Context, apiKey string) error
	ProbeModel(ctx context.Context, apiKey, modelID string) error
}

type SettingsService struct {
	Store  *db.Store
	Box    *secret.Box
	Probe  Prober
	Logger zerolog.Logger
	Now    func() time.Time
}

// APISettings never carries the key itself.
type APISettings struct {
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	MonthlyBudgetUSD *float64 `json:"monthly_budget_usd"`
	HasKey           bool     `json:"has_key"`
	Models           []string `json:"models"`
}

type Usage struct {
	Month            string   `json:"month"`
	Tokens           int64    `json:"tokens"`
	MonthlyBudgetUSD *float64 `json:"monthly_budget_usd"`
}

type APISettingsUpdate struct {
	Provider         string
	Model            string
	APIKey           *string
	MonthlyBudgetUSD *float64
}

func (s *SettingsService) apiConfig(ctx context.Context) (models.APIConfiguration, error) {
	cfg, err := s.Store.APIConfig(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return cfg, fmt.Errorf("load api configuration: %w", err)
	}
	return cfg, nil
}

func (s *SettingsService) API(ctx context.Context) (APISettings, error) {
	cfg, err := s.apiConfig(ctx)
	if err != nil {
		return APISettings{}, err
	}
	out := APISettings{
		Provider:         ai.ProviderOpenAI,
		Model:            ai.DefaultModelLabel,
		MonthlyBudgetUSD: cfg.MonthlyBudgetUSD,
		HasKey:           cfg.HasKey(),
		Models:           ai.ModelLabels,
	}
	if cfg.Provider != nil && *cfg.Provider != "" {
		out.Provider = *cfg.Provider
	}
	if cfg.Model != nil && *cfg.Model != "" {
		out.Model = *cfg.Model
	}
	return out, nil
}

// SaveAPI stores provider settings. A nil key keeps the stored one, an
// empty key is ignored, anything else is encrypted before it is written.
func (s *SettingsService) SaveAPI(ctx context.Context, u APISettingsUpdate) (APISettings, error) {
	if u.Model != "" && !ai.ValidModel(u.Model) {
		return APISettings{}, fmt.Errorf("%w: %q", ErrInvalidModel, u.Model)
	}
	upd := db.APIConfigUpdate{MonthlyBudgetUSD: u.MonthlyBudgetUSD}
	if u.Provider != "" {
		upd.Provider = &u.Provider
	}
	if u.Model != "" {
		upd.Model = &u.Model
	}
	if u.APIKey != nil && strings.TrimSpace(*u.APIKey) != "" {
		if s.Box == nil {
			return APISettings{}, fmt.Errorf("encrypt api key: %w", secret.ErrNoKey)
		}
		sealed, err := s.Box.Encrypt(strings.TrimSpace(*u.APIKey))
		if err != nil {
			return APISettings{}, fmt.Errorf("encrypt api key: %w", err)
		}
		upd.KeyEncrypted = &sealed
	}
	if err := s.Store.SaveAPIConfig(ctx, upd); err != nil {
		return APISettings{}, err
	}
	s.Logger.Info().Str("model", u.Model).Bool("key_updated", upd.KeyEncrypted != nil).Msg("api settings saved")
	return s.API(ctx)
}

// Usage reports token usage for the current month; a counter left over
// from an earlier month reads as zero.
func (s *SettingsService) Usage(ctx context.Context) (Usage, error) {
	cfg, err := s.apiConfig(ctx)
	if err != nil {
		return Usage{}, err
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	out := Usage{Month: now.UTC().Format(usageMonth), MonthlyBudgetUSD: cfg.MonthlyBudgetUSD}
	if cfg.UsageMonth != nil && *cfg.UsageMonth == out.Month {
		out.Tokens = cfg.UsageTokens
	}
	return out, nil
}

// TestKey checks that the provider accepts apiKey.
func (s *SettingsService) TestKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return scoring.ErrMissingCredential
	}
	return s.Probe.ProbeKey(ctx, apiKey)
}

// TestModel sends a one-token request to the model behind label, using
// apiKey or, when empty, the stored key.
func (s *SettingsService) TestModel(ctx context.Context, apiKey, label string) error {
	if !ai.ValidModel(label) {
		return fmt.Errorf("%w: %q", ErrInvalidModel, label)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		cfg, err := s.apiConfig(ctx)
		if err != nil {
			return err
		}
		if apiKey, err = decryptKey(s.Box, cfg); err != nil {
			return err
		}
	}
	return s.Probe.ProbeModel(ctx, apiKey, ai.ModelID(label))
}

func (s *SettingsService) Agent(ctx context.Context) (models.AgentConfig, error) {
	cfg, err := s.Store.AgentConfig(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return cfg, err
	}
	return cfg, nil
}

func (s *SettingsService) SaveAgent(ctx context.Context, cfg models.AgentConfig) error {
	return s.Store.SaveAgentConfig(ctx, cfg)
}
