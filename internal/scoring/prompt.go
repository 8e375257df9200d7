package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weison-t/thereader/internal/models"
)

const rubricLimit = 8000

const systemPrompt = `You are a QA evaluator. Score the chat against the rubric. Return strict JSON (no prose) with this shape:
{
  "criteria": {
%s
  },
  "breach_confidentiality_auto_failed": true|false,
  "rudeness_unprofessionalism_auto_failed": true|false,
  "csat_rating": string,
  "csat_handling_category": string,
  "quality_assurance_feedback": string
}
If either auto-fail is true, the overall final score is 0. Base scores on the transcript only. Just return JSON.`

type Prompt struct {
	System string
	User   string
}

// SystemPrompt lists every criterion in the expected reply shape, followed by
// the operator's rubric guidance when set.
func SystemPrompt(guidance string) string {
	lines := make([]string, 0, len(Criteria))
	for _, c := range Criteria {
		lines = append(lines, fmt.Sprintf(`    %q: { "score": 0-100, "comment": string }`, c.Key))
	}
	out := fmt.Sprintf(systemPrompt, strings.Join(lines, ",\n"))
	if g := strings.TrimSpace(guidance); g != "" {
		out += "\n\nRubric guidance:\n" + g
	}
	return out
}

// RubricSnippet serializes criteria rows for the prompt, capped at 8000 characters.
func RubricSnippet(t models.Table) (string, error) {
	rows := make([]map[string]*string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := t.Record(row)
		delete(rec, models.RowIDColumn)
		rows = append(rows, rec)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return truncate(string(b), rubricLimit), nil
}

func BuildPrompt(rubric, guidance, agent, start, end, transcript string) Prompt {
	user := fmt.Sprintf("Rubric (rows): %s\n\nAgent: %s\nStart: %s\nEnd: %s\nChat content (UTF-8):\n%s",
		rubric, agent, start, end, transcript)
	return Prompt{System: SystemPrompt(guidance), User: user}
}
