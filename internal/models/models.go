package models

import (
	"encoding/json"
	"time"
)

const (
	DatasetRawChat         = "raw_chat"
	DatasetAgentInfo       = "agent_info"
	DatasetCriteriaScoring = "criteria_scoring"
	DatasetSnapshot        = "data_snapshot"
	DatasetSampling        = "sampling_data"
)

// RowIDColumn is the editing key carried by criteria_scoring.
const RowIDColumn = "_row_id"

type ColumnDef struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Header string `json:"header,omitempty"`
}

type DatasetSchema struct {
	Dataset      string      `json:"dataset"`
	Columns      []ColumnDef `json:"columns"`
	SourceObject string      `json:"source_object,omitempty"`
	RowCount     int64       `json:"row_count"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (d DatasetSchema) ColumnNames() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Table is a text-typed dataset held in memory. A nil cell is SQL NULL.
type Table struct {
	Columns []string
	Rows    [][]*string
}

func (t Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

func (t Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Value returns the cell of row at col, nil when the column is absent.
func (t Table) Value(row []*string, col string) *string {
	i := t.Index(col)
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

// Records renders rows as column-keyed maps for JSON responses.
func (t Table) Records() []map[string]*string {
	out := make([]map[string]*string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, t.Record(row))
	}
	return out
}

func (t Table) Record(row []*string) map[string]*string {
	m := make(map[string]*string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(row) {
			m[c] = row[i]
		} else {
			m[c] = nil
		}
	}
	return m
}

type Preview struct {
	Exists  bool                 `json:"exists"`
	Columns []string             `json:"columns"`
	Rows    []map[string]*string `json:"rows"`
	Total   int64                `json:"total"`
}

type StoredObject struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type ScoringResult struct {
	ID                                    string    `json:"id"`
	SourceKey                             string    `json:"source_key"`
	SamplingID                            *string   `json:"sampling_id"`
	StartTime                             *string   `json:"start_time"`
	CompletionTime                        *string   `json:"completion_time"`
	QAName                                *string   `json:"qa_name"`
	ChatLink                              *string   `json:"chat_link"`
	AgentCallerName                       *string   `json:"agent_caller_name"`
	ChatDateTime                          *string   `json:"chat_date_time"`
	ChatDuration                          *string   `json:"chat_duration"`
	OpeningResponseTime                   string    `json:"opening_response_time"`
	OngoingResponseTime                   string    `json:"ongoing_response_time"`
	HoldingManagement                     string    `json:"holding_management"`
	ClosingManagement                     string    `json:"closing_management"`
	VerificationEfficiency                string    `json:"verification_efficiency"`
	Thoroughness                          string    `json:"thoroughness"`
	Proactiveness                         string    `json:"proactiveness"`
	RelevanceAndClarity                   string    `json:"relevance_and_clarity"`
	LanguageNaturalFlow                   string    `json:"language_natural_flow"`
	Correction                            string    `json:"correction"`
	ProperEmpathyAcknowledgement          string    `json:"proper_empathy_acknowledgement"`
	OverallChatHandlingCustomerExperience string    `json:"overall_chat_handling_customer_experience"`
	BreachConfidentialityAutoFailed       bool      `json:"breach_confidentiality_auto_failed"`
	RudenessUnprofessionalismAutoFailed   bool      `json:"rudeness_unprofessionalism_auto_failed"`
	CSATRating                            *string   `json:"csat_rating"`
	CSATHandlingCategory                  *string   `json:"csat_handling_category"`
	QualityAssuranceFeedback              *string   `json:"quality_assurance_feedback"`
	FinalScore                            float64   `json:"final_score"`
	Degraded                              bool      `json:"degraded"`
	CreatedAt                             time.Time `json:"created_at"`
}

type APIConfiguration struct {
	Provider           *string  `json:"provider"`
	Model              *string  `json:"model"`
	MonthlyBudgetUSD   *float64 `json:"monthly_budget_usd"`
	UsageMonth         *string  `json:"usage_month"`
	UsageTokens        int64    `json:"usage_tokens"`
	OpenAIKeyEncrypted *string  `json:"-"`
}

func (c APIConfiguration) HasKey() bool {
	return c.OpenAIKeyEncrypted != nil && *c.OpenAIKeyEncrypted != ""
}

type AgentConfig struct {
	RubricUnderstanding *string `json:"rubric_understanding"`
}

type ScoringRun struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
}

type TableStat struct {
	Exists   bool  `json:"exists"`
	RowCount int64 `json:"rowCount"`
}

// ReportRow is one numeric projection of a scoring result (processed_data / scoring_data).
type ReportRow struct {
	QAName                                string   `json:"qa_name"`
	AgentCallerName                       *string  `json:"agent_caller_name"`
	OpeningResponseTime                   *float64 `json:"opening_response_time"`
	OngoingResponseTime                   *float64 `json:"ongoing_response_time"`
	HoldingManagement                     *float64 `json:"holding_management"`
	ClosingManagement                     *float64 `json:"closing_management"`
	VerificationEfficiency                *float64 `json:"verification_efficiency"`
	Thoroughness                          *float64 `json:"thoroughness"`
	Proactiveness                         *float64 `json:"proactiveness"`
	RelevanceAndClarity                   *float64 `json:"relevance_and_clarity"`
	LanguageNaturalFlow                   *float64 `json:"language_natural_flow"`
	Correction                            *float64 `json:"correction"`
	ProperEmpathyAcknowledgement          *float64 `json:"proper_empathy_acknowledgement"`
	BreachConfidentiality                 bool     `json:"breach_confidentiality"`
	RudenessUnprofessionalism             bool     `json:"rudeness_unprofessionalism"`
	OverallChatHandlingCustomerExperience *float64 `json:"overall_chat_handling_customer_experience"`
	Scoring                               *float64 `json:"scoring"`
	Results                               *string  `json:"results"`
	AgentStatus                           *string  `json:"agent_status"`
}
