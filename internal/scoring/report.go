package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/weison-t/thereader/internal/models"
)

// DefaultQAName fills qa_name on report rows when the model left it blank.
const DefaultQAName = "AIVA"

var scoreCell = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*/\s*100`)

// ParseScoreCell reads the numeric score from "85.5/100 - ok" or a bare number.
func ParseScoreCell(v string) *float64 {
	if m := scoreCell.FindStringSubmatch(v); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &f
		}
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return &f
	}
	return nil
}

// Project converts a stored result into its numeric report row.
func Project(r models.ScoringResult) models.ReportRow {
	qa := DefaultQAName
	if r.QAName != nil && strings.TrimSpace(*r.QAName) != "" {
		qa = strings.TrimSpace(*r.QAName)
	}
	score := r.FinalScore
	return models.ReportRow{
		QAName:                                qa,
		AgentCallerName:                       r.AgentCallerName,
		OpeningResponseTime:                   ParseScoreCell(r.OpeningResponseTime),
		OngoingResponseTime:                   ParseScoreCell(r.OngoingResponseTime),
		HoldingManagement:                     ParseScoreCell(r.HoldingManagement),
		ClosingManagement:                     ParseScoreCell(r.ClosingManagement),
		VerificationEfficiency:                ParseScoreCell(r.VerificationEfficiency),
		Thoroughness:                          ParseScoreCell(r.Thoroughness),
		Proactiveness:                         ParseScoreCell(r.Proactiveness),
		RelevanceAndClarity:                   ParseScoreCell(r.RelevanceAndClarity),
		LanguageNaturalFlow:                   ParseScoreCell(r.LanguageNaturalFlow),
		Correction:                            ParseScoreCell(r.Correction),
		ProperEmpathyAcknowledgement:          ParseScoreCell(r.ProperEmpathyAcknowledgement),
		BreachConfidentiality:                 r.BreachConfidentialityAutoFailed,
		RudenessUnprofessionalism:             r.RudenessUnprofessionalismAutoFailed,
		OverallChatHandlingCustomerExperience: ParseScoreCell(r.OverallChatHandlingCustomerExperience),
		Scoring:                               &score,
		Results:                               r.QualityAssuranceFeedback,
	}
}

type Totals struct {
	Normal  *float64 `json:"normal,omitempty"`
	Premier *float64 `json:"premier,omitempty"`
}

// RubricTotals sums, per customer type, the highest weightage of each
// criterion. Types containing "normal" or "premier" are reported.
func RubricTotals(t models.Table) Totals {
	type group struct{ customerType, criterion string }
	maxW := map[group]float64{}
	for _, row := range t.Rows {
		g := group{customerType: deref(t.Value(row, "customer_type")), criterion: deref(t.Value(row, "criteria"))}
		w := 0.0
		if v := strings.TrimSpace(deref(t.Value(row, "weightage"))); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64); err == nil {
				w = f
			}
		}
		if cur, ok := maxW[g]; !ok || w > cur {
			maxW[g] = w
		}
	}

	byType := map[string]float64{}
	for g, w := range maxW {
		byType[g.customerType] += w
	}
	var out Totals
	for typ, total := range byType {
		total := total
		lower := strings.ToLower(typ)
		if strings.Contains(lower, "normal") {
			out.Normal = &total
		}
		if strings.Contains(lower, "premier") {
			out.Premier = &total
		}
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
