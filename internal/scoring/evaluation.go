package scoring

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const commentLimit = 500

// Evaluation is the JSON object the model is asked to return.
type Evaluation struct {
	Criteria                            map[string]CriterionScore `json:"criteria"`
	BreachConfidentialityAutoFailed     Flag                      `json:"breach_confidentiality_auto_failed"`
	RudenessUnprofessionalismAutoFailed Flag                      `json:"rudeness_unprofessionalism_auto_failed"`
	CSATRating                          Text                      `json:"csat_rating"`
	CSATHandlingCategory                Text                      `json:"csat_handling_category"`
	QualityAssuranceFeedback            Text                      `json:"quality_assurance_feedback"`
	QAName                              Text                      `json:"qa_name"`
	ChatLink                            Text                      `json:"chat_link"`
	ChatDuration                        Text                      `json:"chat_duration"`
}

type CriterionScore struct {
	Score   Number `json:"score"`
	Comment Text   `json:"comment"`
}

// Number accepts a JSON number or numeric string; anything else is 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = Number(f)
			return nil
		}
	}
	*n = 0
	return nil
}

// Flag accepts true/false, "true"/"yes", or 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*f = Flag(t)
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		*f = Flag(s == "true" || s == "yes" || s == "1")
	case float64:
		*f = Flag(t != 0)
	default:
		*f = false
	}
	return nil
}

// Text accepts any JSON scalar and keeps its text form. Null stays empty.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

func (t Text) Ptr() *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// ParseEvaluation decodes model output. A malformed reply yields an
// evaluation whose feedback is the raw text, together with the decode error.
func ParseEvaluation(content string) (Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal([]byte(content), &ev); err != nil {
		return Evaluation{QualityAssuranceFeedback: Text(content)}, err
	}
	return ev, nil
}

func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

func (e Evaluation) Score(key string) float64 {
	return Clamp(float64(e.Criteria[key].Score))
}

func (e Evaluation) AutoFailed() bool {
	return bool(e.BreachConfidentialityAutoFailed) || bool(e.RudenessUnprofessionalismAutoFailed)
}

// FormatCriterion renders "{score}/100 - {comment}".
func FormatCriterion(score float64, comment string) string {
	return strconv.FormatFloat(Clamp(score), 'f', -1, 64) + "/100 - " + truncate(comment, commentLimit)
}

func (e Evaluation) Field(key string) string {
	c := e.Criteria[key]
	return FormatCriterion(float64(c.Score), string(c.Comment))
}

// Composite is 0 when any auto-fail flag is set, else the weighted mean of
// clamped criterion scores rounded to two decimals.
func Composite(e Evaluation) float64 {
	if e.AutoFailed() {
		return 0
	}
	var total, weights float64
	for _, c := range Criteria {
		total += e.Score(c.Key) * c.Weight
		weights += c.Weight
	}
	if weights == 0 {
		return 0
	}
	return math.Round(total/weights*100) / 100
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
