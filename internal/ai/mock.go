package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
)

// MockEvaluator scores deterministically from a hash of the prompt.
type MockEvaluator struct {
	ModelVersion string
}

func MockFactory(version string) Factory {
	return func(string) Evaluator {
		return MockEvaluator{ModelVersion: version}
	}
}

func (m MockEvaluator) Evaluate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	h := promptHash(req)

	keys := []string{
		"opening_response_time", "ongoing_response_time", "holding_management", "closing_management",
		"verification_efficiency", "thoroughness", "proactiveness", "relevance_and_clarity",
		"language_natural_flow", "correction", "proper_empathy_acknowledgement",
		"overall_chat_handling_customer_experience",
	}
	criteria := map[string]any{}
	for i, k := range keys {
		score := 60 + int((h>>uint(i*5))%41)
		criteria[k] = map[string]any{
			"score":   score,
			"comment": fmt.Sprintf("%s assessed by %s", k, m.ModelVersion),
		}
	}
	csat := []string{"Satisfied", "Neutral", "Dissatisfied"}
	body := map[string]any{
		"criteria":                               criteria,
		"breach_confidentiality_auto_failed":     h%97 == 0,
		"rudeness_unprofessionalism_auto_failed": false,
		"csat_rating":                            csat[int(h%uint64(len(csat)))],
		"csat_handling_category":                 "General",
		"quality_assurance_feedback":             "Automated mock evaluation",
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: string(b), Model: m.ModelVersion}, nil
}

// promptHash keys mock scores on the transcript and rubric together.
func promptHash(req Request) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.System))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.User))
	return h.Sum64()
}

// MockProber accepts any non-empty key.
type MockProber struct{}

func (MockProber) ProbeKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return errors.New("empty api key")
	}
	return ctx.Err()
}

func (p MockProber) ProbeModel(ctx context.Context, apiKey, modelID string) error {
	if modelID == "" {
		return errors.New("empty model id")
	}
	return p.ProbeKey(ctx, apiKey)
}
