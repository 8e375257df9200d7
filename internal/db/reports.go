package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/weison-t/thereader/internal/models"
)

const (
	ProcessedData = "processed_data"
	ScoringData   = "scoring_data"
	reportLimit   = 200
)

var reportColumns = []string{
	"qa_name", "agent_caller_name",
	"opening_response_time", "ongoing_response_time", "holding_management", "closing_management",
	"verification_efficiency", "thoroughness", "proactiveness", "relevance_and_clarity",
	"language_natural_flow", "correction", "proper_empathy_acknowledgement",
	"breach_confidentiality", "rudeness_unprofessionalism",
	"overall_chat_handling_customer_experience",
	"scoring", "results", "agent_status",
}

func reportDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		qa_name text DEFAULT 'AIVA',
		agent_caller_name text,
		opening_response_time numeric,
		ongoing_response_time numeric,
		holding_management numeric,
		closing_management numeric,
		verification_efficiency numeric,
		thoroughness numeric,
		proactiveness numeric,
		relevance_and_clarity numeric,
		language_natural_flow numeric,
		correction numeric,
		proper_empathy_acknowledgement numeric,
		breach_confidentiality boolean,
		rudeness_unprofessionalism boolean,
		overall_chat_handling_customer_experience numeric,
		scoring numeric,
		results text,
		agent_status text
	)`, qualified(name))
}

func reportValues(r models.ReportRow) []any {
	return []any{
		r.QAName, r.AgentCallerName,
		r.OpeningResponseTime, r.OngoingResponseTime, r.HoldingManagement, r.ClosingManagement,
		r.VerificationEfficiency, r.Thoroughness, r.Proactiveness, r.RelevanceAndClarity,
		r.LanguageNaturalFlow, r.Correction, r.ProperEmpathyAcknowledgement,
		r.BreachConfidentiality, r.RudenessUnprofessionalism,
		r.OverallChatHandlingCustomerExperience,
		r.Scoring, r.Results, r.AgentStatus,
	}
}

func recreateReport(ctx context.Context, tx pgx.Tx, name string, drop bool) error {
	if drop {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+qualified(name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	if _, err := tx.Exec(ctx, reportDDL(name)); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}

// ResetReport recreates an empty report table.
func (s *Store) ResetReport(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, name); err != nil {
			return err
		}
		return recreateReport(ctx, tx, name, true)
	})
}

// AppendProcessed writes report rows into processed_data, emptying it first
// when replace is set.
func (s *Store) AppendProcessed(ctx context.Context, rows []models.ReportRow, replace bool) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, ProcessedData); err != nil {
			return err
		}
		if err := recreateReport(ctx, tx, ProcessedData, replace); err != nil {
			return err
		}
		var err error
		n, err = tx.CopyFrom(ctx, pgx.Identifier{schemaName, ProcessedData}, reportColumns,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				return reportValues(rows[i]), nil
			}))
		return err
	})
	return n, err
}

// CopyProcessedToScoring appends processed_data into scoring_data.
func (s *Store) CopyProcessedToScoring(ctx context.Context, replace bool) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, ProcessedData, ScoringData); err != nil {
			return err
		}
		exists, err := TableExists(ctx, tx, ProcessedData)
		if err != nil {
			return err
		}
		if !exists {
			return Missing(ProcessedData)
		}
		if err := recreateReport(ctx, tx, ScoringData, replace); err != nil {
			return err
		}

		selects := make([]string, len(reportColumns))
		for i, c := range reportColumns {
			selects[i] = "pd." + c
		}
		selects[0] = "COALESCE(pd.qa_name, 'AIVA')"
		tag, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s pd`,
			qualified(ScoringData), strings.Join(reportColumns, ", "), strings.Join(selects, ", "), qualified(ProcessedData)))
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// Report lists up to 200 rows of a report table, creating it when absent.
func (s *Store) Report(ctx context.Context, name string) ([]models.ReportRow, error) {
	if _, err := s.Pool.Exec(ctx, reportDDL(name)); err != nil {
		return nil, err
	}
	exprs := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		exprs[i] = c
		switch c {
		case "qa_name":
			exprs[i] = "COALESCE(qa_name, 'AIVA')"
		case "breach_confidentiality", "rudeness_unprofessionalism":
			exprs[i] = "COALESCE(" + c + ", false)"
		case "agent_caller_name", "results", "agent_status":
		default:
			exprs[i] = c + "::float8"
		}
	}
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s LIMIT $1`, strings.Join(exprs, ", "), qualified(name)), reportLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ReportRow{}
	for rows.Next() {
		var r models.ReportRow
		if err := rows.Scan(
			&r.QAName, &r.AgentCallerName,
			&r.OpeningResponseTime, &r.OngoingResponseTime, &r.HoldingManagement, &r.ClosingManagement,
			&r.VerificationEfficiency, &r.Thoroughness, &r.Proactiveness, &r.RelevanceAndClarity,
			&r.LanguageNaturalFlow, &r.Correction, &r.ProperEmpathyAcknowledgement,
			&r.BreachConfidentiality, &r.RudenessUnprofessionalism,
			&r.OverallChatHandlingCustomerExperience,
			&r.Scoring, &r.Results, &r.AgentStatus,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
