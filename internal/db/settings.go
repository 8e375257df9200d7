package db

import (
	"context"

	"github.com/weison-t/thereader/internal/models"
)

func (s *Store) APIConfig(ctx context.Context) (models.APIConfiguration, error) {
	var c models.APIConfiguration
	err := s.Pool.QueryRow(ctx, `
		SELECT provider, model, monthly_budget_usd::float8, usage_month, COALESCE(usage_tokens, 0), openai_key_encrypted
		FROM api_configuration WHERE id = 1
	`).Scan(&c.Provider, &c.Model, &c.MonthlyBudgetUSD, &c.UsageMonth, &c.UsageTokens, &c.OpenAIKeyEncrypted)
	return c, err
}

// APIConfigUpdate keeps the stored value for every nil field except the budget,
// which is always overwritten.
type APIConfigUpdate struct {
	Provider         *string
	Model            *string
	KeyEncrypted     *string
	MonthlyBudgetUSD *float64
}

func (s *Store) SaveAPIConfig(ctx context.Context, u APIConfigUpdate) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO api_configuration (id, provider, model, openai_key_encrypted, monthly_budget_usd, updated_at)
		VALUES (1, COALESCE($1, 'OpenAI'), COALESCE($2, 'GPT-5 mini'), $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			provider = COALESCE($1, api_configuration.provider),
			model = COALESCE($2, api_configuration.model),
			openai_key_encrypted = COALESCE($3, api_configuration.openai_key_encrypted),
			monthly_budget_usd = $4,
			updated_at = NOW()
	`, u.Provider, u.Model, u.KeyEncrypted, u.MonthlyBudgetUSD)
	return err
}

// AddUsage accumulates tokens for month, restarting the counter when the month changes.
func (s *Store) AddUsage(ctx context.Context, month string, tokens int64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE api_configuration SET
			usage_tokens = CASE WHEN usage_month = $1 THEN COALESCE(usage_tokens, 0) + $2 ELSE $2 END,
			usage_month = $1,
			updated_at = NOW()
		WHERE id = 1
	`, month, tokens)
	return err
}

func (s *Store) AgentConfig(ctx context.Context) (models.AgentConfig, error) {
	var c models.AgentConfig
	err := s.Pool.QueryRow(ctx, `SELECT rubric_understanding FROM ai_agent_config WHERE id = 1`).Scan(&c.RubricUnderstanding)
	return c, err
}

func (s *Store) SaveAgentConfig(ctx context.Context, c models.AgentConfig) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO ai_agent_config (id, rubric_understanding) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET rubric_understanding = EXCLUDED.rubric_understanding
	`, c.RubricUnderstanding)
	return err
}
