package db

import (
	"context"
	"fmt"
)

var bootstrap = []string{
	`CREATE TABLE IF NOT EXISTS dataset_schemas (
		dataset text PRIMARY KEY,
		columns jsonb NOT NULL,
		source_object text,
		row_count bigint NOT NULL DEFAULT 0,
		updated_at timestamptz NOT NULL DEFAULT NOW()
	)`,
	resultsDDL,
	`CREATE TABLE IF NOT EXISTS api_configuration (
		id int PRIMARY KEY DEFAULT 1,
		provider text,
		model text,
		openai_key_encrypted text,
		monthly_budget_usd numeric,
		usage_month text,
		usage_tokens bigint,
		updated_at timestamptz DEFAULT NOW()
	)`,
	`INSERT INTO api_configuration (id, provider, model, usage_month, usage_tokens)
		VALUES (1, 'OpenAI', 'GPT-5 mini', to_char(NOW(), 'YYYY-MM'), 0)
		ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS ai_agent_config (
		id int PRIMARY KEY DEFAULT 1,
		rubric_understanding text
	)`,
	`INSERT INTO ai_agent_config (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS scoring_runs (
		id uuid PRIMARY KEY,
		status text NOT NULL,
		summary jsonb,
		started_at timestamptz NOT NULL DEFAULT NOW(),
		finished_at timestamptz
	)`,
}

// EnsureSchema creates the fixed tables. Dataset tables are created on upload.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range bootstrap {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
