package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/metrics"
	"github.com/weison-t/thereader/internal/models"
)

var (
	ErrMissingCredential = errors.New("missing provider credential")
	ErrMissingRubric     = errors.New("criteria rubric is empty")
)

type Kind string

const (
	KindSuccess  Kind = "success"
	KindDegraded Kind = "degraded"
	KindSkipped  Kind = "skipped"
)

// Outcome is the tagged result of scoring one record.
type Outcome struct {
	Kind   Kind
	Result models.ScoringResult
	Reason string
	Tokens int
}

type Batch struct {
	Credential string
	Model      string
	MaxTokens  int
	Rubric     models.Table
	Guidance   string
	Records    []Record
}

type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Degraded  int `json:"degraded"`
	Skipped   int `json:"skipped"`
	Tokens    int `json:"tokens"`
}

// Sink persists one result. A sink error aborts the batch.
type Sink func(ctx context.Context, r models.ScoringResult) error

type Pipeline struct {
	NewEvaluator ai.Factory
	Workers      int
	Logger       zerolog.Logger
}

// Run scores every record. Missing credentials or rubric fail before any
// call; individual model failures become degraded results. Results reach
// the sink in record order.
func (p *Pipeline) Run(ctx context.Context, b Batch, sink Sink) (Summary, error) {
	var sum Summary
	if b.Credential == "" {
		return sum, ErrMissingCredential
	}
	if len(b.Rubric.Rows) == 0 {
		return sum, ErrMissingRubric
	}
	rubric, err := RubricSnippet(b.Rubric)
	if err != nil {
		return sum, fmt.Errorf("serialize rubric: %w", err)
	}

	ev := p.NewEvaluator(b.Credential)
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]Outcome, workers)
	for start := 0; start < len(b.Records); start += workers {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		end := start + workers
		if end > len(b.Records) {
			end = len(b.Records)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i-start] = p.Score(ctx, ev, b, rubric, b.Records[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes[:end-start] {
			metrics.ScoringRecords.WithLabelValues(string(o.Kind)).Inc()
			sum.Tokens += o.Tokens
			if o.Kind == KindSkipped {
				sum.Skipped++
				continue
			}
			if err := sink(ctx, o.Result); err != nil {
				return sum, fmt.Errorf("save result %s: %w", o.Result.SourceKey, err)
			}
			sum.Processed++
			if o.Kind == KindDegraded {
				sum.Degraded++
			} else {
				sum.Succeeded++
			}
		}
	}
	return sum, nil
}

// Score evaluates one record and never fails: transport or parse errors
// produce a degraded outcome.
func (p *Pipeline) Score(ctx context.Context, ev ai.Evaluator, b Batch, rubric string, rec Record) Outcome {
	transcript := ExtractTranscript(rec)
	if transcript == "" {
		return Outcome{Kind: KindSkipped, Reason: "empty transcript"}
	}
	agent := AgentName(rec)
	prompt := BuildPrompt(rubric, b.Guidance, agent, StartTime(rec), EndTime(rec), transcript)

	resp, err := ev.Evaluate(ctx, ai.Request{
		Model:     b.Model,
		System:    prompt.System,
		User:      prompt.User,
		MaxTokens: b.MaxTokens,
	})
	if err != nil {
		p.Logger.Warn().Err(err).Str("sampling_id", SamplingID(rec)).Msg("model call failed")
		evaluation := Evaluation{QualityAssuranceFeedback: Text("Model error: " + err.Error())}
		return Outcome{Kind: KindDegraded, Reason: err.Error(), Result: BuildResult(rec, transcript, evaluation, true)}
	}

	evaluation, perr := ParseEvaluation(resp.Content)
	if perr != nil {
		p.Logger.Warn().Err(perr).Str("sampling_id", SamplingID(rec)).Msg("model reply is not valid JSON")
		return Outcome{Kind: KindDegraded, Reason: perr.Error(), Tokens: resp.TotalTokens(), Result: BuildResult(rec, transcript, evaluation, true)}
	}
	return Outcome{Kind: KindSuccess, Tokens: resp.TotalTokens(), Result: BuildResult(rec, transcript, evaluation, false)}
}

// BuildResult maps an evaluation onto the persisted result row.
func BuildResult(rec Record, transcript string, e Evaluation, degraded bool) models.ScoringResult {
	samplingID := SamplingID(rec)
	start := StartTime(rec)
	end := EndTime(rec)

	duration := e.ChatDuration.Ptr()
	if duration == nil {
		duration = nonEmpty(rec.first([]string{"duration"}))
	}

	return models.ScoringResult{
		ID:                                    uuid.NewString(),
		SourceKey:                             SourceKey(samplingID, start, transcript),
		SamplingID:                            nonEmpty(samplingID),
		StartTime:                             nonEmpty(start),
		CompletionTime:                        nonEmpty(end),
		QAName:                                e.QAName.Ptr(),
		ChatLink:                              e.ChatLink.Ptr(),
		AgentCallerName:                       nonEmpty(AgentName(rec)),
		ChatDateTime:                          nonEmpty(start),
		ChatDuration:                          duration,
		OpeningResponseTime:                   e.Field("opening_response_time"),
		OngoingResponseTime:                   e.Field("ongoing_response_time"),
		HoldingManagement:                     e.Field("holding_management"),
		ClosingManagement:                     e.Field("closing_management"),
		VerificationEfficiency:                e.Field("verification_efficiency"),
		Thoroughness:                          e.Field("thoroughness"),
		Proactiveness:                         e.Field("proactiveness"),
		RelevanceAndClarity:                   e.Field("relevance_and_clarity"),
		LanguageNaturalFlow:                   e.Field("language_natural_flow"),
		Correction:                            e.Field("correction"),
		ProperEmpathyAcknowledgement:          e.Field("proper_empathy_acknowledgement"),
		OverallChatHandlingCustomerExperience: e.Field("overall_chat_handling_customer_experience"),
		BreachConfidentialityAutoFailed:       bool(e.BreachConfidentialityAutoFailed),
		RudenessUnprofessionalismAutoFailed:   bool(e.RudenessUnprofessionalismAutoFailed),
		CSATRating:                            e.CSATRating.Ptr(),
		CSATHandlingCategory:                  e.CSATHandlingCategory.Ptr(),
		QualityAssuranceFeedback:              e.QualityAssuranceFeedback.Ptr(),
		FinalScore:                            Composite(e),
		Degraded:                              degraded,
		CreatedAt:                             time.Now().UTC(),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
