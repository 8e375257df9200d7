package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/models"
)

func s(v string) *string { return &v }

func fullMarks() Evaluation {
	ev := Evaluation{Criteria: map[string]CriterionScore{}}
	for _, c := range Criteria {
		ev.Criteria[c.Key] = CriterionScore{Score: 100, Comment: "ok"}
	}
	return ev
}

func TestWeightsSumToHundred(t *testing.T) {
	if got := TotalWeight(); got != 100 {
		t.Fatalf("expected total weight 100, got %v", got)
	}
}

func TestCompositeFullMarks(t *testing.T) {
	if got := Composite(fullMarks()); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestCompositeAutoFail(t *testing.T) {
	ev := fullMarks()
	ev.RudenessUnprofessionalismAutoFailed = true
	if got := Composite(ev); got != 0 {
		t.Fatalf("expected 0 on auto-fail, got %v", got)
	}
}

func TestCompositeClampsAndRounds(t *testing.T) {
	ev := Evaluation{Criteria: map[string]CriterionScore{
		"verification_efficiency": {Score: 250},
		"thoroughness":            {Score: -10},
		"correction":              {Score: 33.333},
	}}
	// 100*20 + 0*20 + 33.333*7 = 2233.331 / 100
	if got := Composite(ev); got != 22.33 {
		t.Fatalf("expected 22.33, got %v", got)
	}
}

func TestParseEvaluationLenientTypes(t *testing.T) {
	content := `{"criteria":{"thoroughness":{"score":"85","comment":"good"},"correction":{"score":"n/a"}},
		"breach_confidentiality_auto_failed":"yes","rudeness_unprofessionalism_auto_failed":0,
		"csat_rating":4,"quality_assurance_feedback":null}`
	ev, err := ParseEvaluation(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Score("thoroughness") != 85 || ev.Score("correction") != 0 {
		t.Fatalf("unexpected scores: %+v", ev.Criteria)
	}
	if !bool(ev.BreachConfidentialityAutoFailed) || bool(ev.RudenessUnprofessionalismAutoFailed) {
		t.Fatalf("unexpected flags: %+v", ev)
	}
	if ev.CSATRating != "4" || ev.QualityAssuranceFeedback.Ptr() != nil {
		t.Fatalf("unexpected text fields: %q %v", ev.CSATRating, ev.QualityAssuranceFeedback.Ptr())
	}
}

func TestParseEvaluationMalformed(t *testing.T) {
	ev, err := ParseEvaluation("not json at all")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if string(ev.QualityAssuranceFeedback) != "not json at all" {
		t.Fatalf("expected raw text as feedback, got %q", ev.QualityAssuranceFeedback)
	}
	if Composite(ev) != 0 {
		t.Fatalf("expected zero composite for malformed reply")
	}
}

func TestFormatCriterionTruncatesComment(t *testing.T) {
	got := FormatCriterion(87.5, strings.Repeat("x", 600))
	if !strings.HasPrefix(got, "87.5/100 - ") {
		t.Fatalf("unexpected prefix: %q", got[:20])
	}
	if n := len(strings.TrimPrefix(got, "87.5/100 - ")); n != 500 {
		t.Fatalf("expected 500 comment chars, got %d", n)
	}
}

func TestExtractTranscriptPriority(t *testing.T) {
	rec := Record{Columns: []string{"message", "content"}, Values: []*string{s("second"), s("first")}}
	if got := ExtractTranscript(rec); got != "first" {
		t.Fatalf("expected content column, got %q", got)
	}
}

func TestExtractTranscriptFallback(t *testing.T) {
	rec := Record{
		Columns: []string{"id", "agent", "blank", "huge", "note"},
		Values:  []*string{s("7"), s("ana"), s(""), s(strings.Repeat("y", 2001)), nil},
	}
	want := "id: 7\nagent: ana"
	if got := ExtractTranscript(rec); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExtractTranscriptCap(t *testing.T) {
	rec := Record{Columns: []string{"content"}, Values: []*string{s(strings.Repeat("é", 25000))}}
	if got := len([]rune(ExtractTranscript(rec))); got != 20000 {
		t.Fatalf("expected 20000 runes, got %d", got)
	}
}

func TestSourceKeyStable(t *testing.T) {
	a := SourceKey("", "2024-01-01", strings.Repeat("a", 300))
	b := SourceKey("", "2024-01-01", strings.Repeat("a", 400))
	if a != b {
		t.Fatalf("expected key to depend on the first 256 transcript chars only")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if a == SourceKey("x", "2024-01-01", strings.Repeat("a", 300)) {
		t.Fatalf("expected sampling id to change the key")
	}
}

func TestRubricSnippetDropsRowID(t *testing.T) {
	rubric := models.Table{
		Columns: []string{models.RowIDColumn, "criteria", "weightage"},
		Rows:    [][]*string{{s("1"), s("Thoroughness"), s("20")}},
	}
	got, err := RubricSnippet(rubric)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, models.RowIDColumn) || !strings.Contains(got, "Thoroughness") {
		t.Fatalf("unexpected snippet: %s", got)
	}
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls int
	fn    func(req ai.Request) (ai.Response, error)
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req ai.Request) (ai.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func batchOf(rows ...[]*string) Batch {
	t := models.Table{Columns: []string{"id", "agent", "start_time", "content"}, Rows: rows}
	return Batch{
		Credential: "sk-test",
		Model:      "gpt-4o-mini",
		MaxTokens:  900,
		Rubric: models.Table{
			Columns: []string{"criteria", "weightage"},
			Rows:    [][]*string{{s("Thoroughness"), s("20")}},
		},
		Records: Records(t),
	}
}

func TestPipelineRun(t *testing.T) {
	fake := &fakeEvaluator{fn: func(req ai.Request) (ai.Response, error) {
		switch {
		case strings.Contains(req.User, "fails"):
			return ai.Response{}, errors.New("upstream 500")
		case strings.Contains(req.User, "garbled"):
			return ai.Response{Content: "{oops", PromptTokens: 3}, nil
		}
		return ai.Response{Content: `{"criteria":{"thoroughness":{"score":90,"comment":"fine"}}}`, PromptTokens: 10, CompletionTokens: 5}, nil
	}}
	p := &Pipeline{NewEvaluator: func(string) ai.Evaluator { return fake }, Workers: 2, Logger: zerolog.Nop()}

	b := batchOf(
		[]*string{s("1"), s("ana"), s("2024-01-01 10:00"), s("hello there")},
		[]*string{s("2"), s("ben"), s("2024-01-01 11:00"), s("this one fails")},
		[]*string{s("3"), s("cy"), s("2024-01-01 12:00"), s("garbled reply")},
		[]*string{nil, nil, nil, nil},
	)

	var saved []models.ScoringResult
	sum, err := p.Run(context.Background(), b, func(_ context.Context, r models.ScoringResult) error {
		saved = append(saved, r)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Processed != 3 || sum.Succeeded != 1 || sum.Degraded != 2 || sum.Skipped != 1 || sum.Tokens != 18 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(saved) != 3 || *saved[0].SamplingID != "1" || *saved[2].SamplingID != "3" {
		t.Fatalf("expected results in record order, got %d", len(saved))
	}
	if saved[0].Thoroughness != "90/100 - fine" || saved[0].FinalScore != 18 {
		t.Fatalf("unexpected first result: %q %v", saved[0].Thoroughness, saved[0].FinalScore)
	}
	if !saved[1].Degraded || !strings.HasPrefix(*saved[1].QualityAssuranceFeedback, "Model error: ") {
		t.Fatalf("expected degraded model error, got %+v", saved[1])
	}
	if !saved[2].Degraded || *saved[2].QualityAssuranceFeedback != "{oops" {
		t.Fatalf("expected raw reply as feedback, got %+v", saved[2])
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 model calls, got %d", fake.calls)
	}
}

func TestPipelineFailsFast(t *testing.T) {
	fake := &fakeEvaluator{fn: func(ai.Request) (ai.Response, error) { return ai.Response{}, nil }}
	p := &Pipeline{NewEvaluator: func(string) ai.Evaluator { return fake }, Logger: zerolog.Nop()}
	sink := func(context.Context, models.ScoringResult) error { return nil }

	b := batchOf([]*string{s("1"), s("ana"), nil, s("hi")})
	b.Credential = ""
	if _, err := p.Run(context.Background(), b, sink); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	b = batchOf([]*string{s("1"), s("ana"), nil, s("hi")})
	b.Rubric = models.Table{}
	if _, err := p.Run(context.Background(), b, sink); !errors.Is(err, ErrMissingRubric) {
		t.Fatalf("expected ErrMissingRubric, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("expected no model calls, got %d", fake.calls)
	}
}

func TestPipelineSinkErrorAborts(t *testing.T) {
	p := &Pipeline{NewEvaluator: ai.MockFactory("mock-1"), Logger: zerolog.Nop()}
	b := batchOf(
		[]*string{s("1"), s("ana"), nil, s("hi")},
		[]*string{s("2"), s("ben"), nil, s("yo")},
	)
	calls := 0
	_, err := p.Run(context.Background(), b, func(context.Context, models.ScoringResult) error {
		calls++
		return errors.New("disk full")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected abort after first sink error, got err=%v calls=%d", err, calls)
	}
}
