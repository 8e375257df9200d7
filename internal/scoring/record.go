package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/weison-t/thereader/internal/models"
)

const (
	transcriptLimit    = 20000
	fallbackFieldLimit = 2000
	fallbackFieldCount = 20
	sourceKeyPrefix    = 256
)

var (
	transcriptFields = []string{"content", "message", "chat_content", "transcript"}
	agentFields      = []string{"actual_agent", "agent", "agent_name"}
	idFields         = []string{"id", "ID", "chat_id", "uuid"}
	startFields      = []string{"start_time", "Start_Time"}
	endFields        = []string{"end_time", "End_Time"}
)

// Record is one sampled chat with its columns in table order.
type Record struct {
	Columns []string
	Values  []*string
}

// Records splits a table into records sharing its column slice.
func Records(t models.Table) []Record {
	out := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, Record{Columns: t.Columns, Values: row})
	}
	return out
}

func (r Record) Get(col string) *string {
	for i, c := range r.Columns {
		if c == col && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return nil
}

func (r Record) first(cols []string) string {
	for _, c := range cols {
		if v := r.Get(c); v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// ExtractTranscript picks the first populated transcript column. Without
// one, it lists up to 20 short populated fields as "key: value" lines.
func ExtractTranscript(r Record) string {
	text := r.first(transcriptFields)
	if text == "" {
		var parts []string
		for i, c := range r.Columns {
			if i >= len(r.Values) || r.Values[i] == nil {
				continue
			}
			v := *r.Values[i]
			if v == "" || len([]rune(v)) > fallbackFieldLimit {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", c, v))
			if len(parts) >= fallbackFieldCount {
				break
			}
		}
		text = strings.Join(parts, "\n")
	}
	return truncate(text, transcriptLimit)
}

func AgentName(r Record) string  { return r.first(agentFields) }
func SamplingID(r Record) string { return r.first(idFields) }
func StartTime(r Record) string  { return r.first(startFields) }
func EndTime(r Record) string    { return r.first(endFields) }

// SourceKey is the content hash used to deduplicate results lacking a sampling id.
func SourceKey(samplingID, start, transcript string) string {
	base := samplingID + "|" + start + "|" + truncate(transcript, sourceKeyPrefix)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
