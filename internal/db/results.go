package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/weison-t/thereader/internal/models"
)

// ResponseResult holds one scored chat per row.
const ResponseResult = "response_result"

const resultsDDL = `CREATE TABLE IF NOT EXISTS response_result (
	id uuid PRIMARY KEY,
	source_key text NOT NULL UNIQUE,
	sampling_id text UNIQUE,
	start_time text,
	completion_time text,
	qa_name text,
	chat_link text,
	agent_caller_name text,
	chat_date_time text,
	chat_duration text,
	opening_response_time text,
	ongoing_response_time text,
	holding_management text,
	closing_management text,
	verification_efficiency text,
	thoroughness text,
	proactiveness text,
	relevance_and_clarity text,
	language_natural_flow text,
	correction text,
	proper_empathy_acknowledgement text,
	overall_chat_handling_customer_experience text,
	breach_confidentiality_auto_failed boolean NOT NULL DEFAULT false,
	rudeness_unprofessionalism_auto_failed boolean NOT NULL DEFAULT false,
	csat_rating text,
	csat_handling_category text,
	quality_assurance_feedback text,
	final_score numeric NOT NULL DEFAULT 0,
	degraded boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL DEFAULT NOW()
)`

// ResultColumns is the column order of response_result, also used for CSV export.
var ResultColumns = []string{
	"id", "source_key", "sampling_id", "start_time", "completion_time", "qa_name", "chat_link",
	"agent_caller_name", "chat_date_time", "chat_duration",
	"opening_response_time", "ongoing_response_time", "holding_management", "closing_management",
	"verification_efficiency", "thoroughness", "proactiveness", "relevance_and_clarity",
	"language_natural_flow", "correction", "proper_empathy_acknowledgement",
	"overall_chat_handling_customer_experience",
	"breach_confidentiality_auto_failed", "rudeness_unprofessionalism_auto_failed",
	"csat_rating", "csat_handling_category", "quality_assurance_feedback",
	"final_score", "degraded", "created_at",
}

func resultValues(r models.ScoringResult) []any {
	return []any{
		r.ID, r.SourceKey, r.SamplingID, r.StartTime, r.CompletionTime, r.QAName, r.ChatLink,
		r.AgentCallerName, r.ChatDateTime, r.ChatDuration,
		r.OpeningResponseTime, r.OngoingResponseTime, r.HoldingManagement, r.ClosingManagement,
		r.VerificationEfficiency, r.Thoroughness, r.Proactiveness, r.RelevanceAndClarity,
		r.LanguageNaturalFlow, r.Correction, r.ProperEmpathyAcknowledgement,
		r.OverallChatHandlingCustomerExperience,
		r.BreachConfidentialityAutoFailed, r.RudenessUnprofessionalismAutoFailed,
		r.CSATRating, r.CSATHandlingCategory, r.QualityAssuranceFeedback,
		r.FinalScore, r.Degraded, r.CreatedAt,
	}
}

func scanResult(row pgx.Row) (models.ScoringResult, error) {
	var r models.ScoringResult
	err := row.Scan(
		&r.ID, &r.SourceKey, &r.SamplingID, &r.StartTime, &r.CompletionTime, &r.QAName, &r.ChatLink,
		&r.AgentCallerName, &r.ChatDateTime, &r.ChatDuration,
		&r.OpeningResponseTime, &r.OngoingResponseTime, &r.HoldingManagement, &r.ClosingManagement,
		&r.VerificationEfficiency, &r.Thoroughness, &r.Proactiveness, &r.RelevanceAndClarity,
		&r.LanguageNaturalFlow, &r.Correction, &r.ProperEmpathyAcknowledgement,
		&r.OverallChatHandlingCustomerExperience,
		&r.BreachConfidentialityAutoFailed, &r.RudenessUnprofessionalismAutoFailed,
		&r.CSATRating, &r.CSATHandlingCategory, &r.QualityAssuranceFeedback,
		&r.FinalScore, &r.Degraded, &r.CreatedAt,
	)
	return r, err
}

var (
	resultSelect = buildResultSelect()
	resultUpsert = buildResultUpsert()
)

func buildResultSelect() string {
	exprs := make([]string, len(ResultColumns))
	for i, c := range ResultColumns {
		switch c {
		case "id":
			exprs[i] = "id::text"
		case "final_score":
			exprs[i] = "final_score::float8"
		default:
			exprs[i] = c
		}
	}
	return "SELECT " + strings.Join(exprs, ", ") + " FROM " + ResponseResult
}

// buildResultUpsert returns the insert shared by both conflict targets.
// The caller appends the ON CONFLICT clause.
func buildResultUpsert() string {
	placeholders := make([]string, len(ResultColumns))
	for i := range ResultColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ResponseResult, strings.Join(ResultColumns, ", "), strings.Join(placeholders, ", "))
}

func conflictUpdate(target string) string {
	sets := make([]string, 0, len(ResultColumns))
	for _, c := range ResultColumns {
		switch c {
		case "id", "source_key", "sampling_id", "created_at":
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "created_at = NOW()")
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(sets, ", "))
}

var (
	upsertBySamplingID = resultUpsert + conflictUpdate("sampling_id")
	upsertBySourceKey  = resultUpsert + conflictUpdate("source_key")
)

// UpsertResult overwrites the previous result of the same chat: by sampling
// id when present, else by content hash.
func UpsertResult(ctx context.Context, q DBTX, r models.ScoringResult) error {
	query := upsertBySourceKey
	if r.SamplingID != nil && *r.SamplingID != "" {
		query = upsertBySamplingID
	}
	_, err := q.Exec(ctx, query, resultValues(r)...)
	return err
}

func (s *Store) UpsertResult(ctx context.Context, r models.ScoringResult) error {
	return UpsertResult(ctx, s.Pool, r)
}

func (s *Store) EnsureResultsTable(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, resultsDDL)
	return err
}

func (s *Store) TruncateResults(ctx context.Context) error {
	if err := s.EnsureResultsTable(ctx); err != nil {
		return err
	}
	_, err := s.Pool.Exec(ctx, `TRUNCATE TABLE `+ResponseResult)
	return err
}

func (s *Store) queryResults(ctx context.Context, suffix string, args ...any) ([]models.ScoringResult, error) {
	rows, err := s.Pool.Query(ctx, resultSelect+" "+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ScoringResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListResults pages results newest first.
func (s *Store) ListResults(ctx context.Context, limit, offset int) ([]models.ScoringResult, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.queryResults(ctx, "ORDER BY created_at DESC, id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := CountRows(ctx, s.Pool, ResponseResult)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ExportResults(ctx context.Context, limit int) ([]models.ScoringResult, error) {
	return s.queryResults(ctx, "ORDER BY created_at DESC, id LIMIT $1", limit)
}

// AllResults returns every result oldest first, the order report rows are built in.
func (s *Store) AllResults(ctx context.Context) ([]models.ScoringResult, error) {
	return s.queryResults(ctx, "ORDER BY created_at ASC, id")
}
