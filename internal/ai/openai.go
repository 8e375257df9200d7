package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/weison-t/thereader/internal/metrics"
	"github.com/weison-t/thereader/internal/retry"
)

// zeroTemperature stands in for 0, which the client drops as an empty field.
const zeroTemperature = math.SmallestNonzeroFloat32

var retryHint = regexp.MustCompile(`(?i)try again in ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|m)\b`)

type OpenAIOptions struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Config
	Logger  zerolog.Logger
}

type OpenAIEvaluator struct {
	client  *openai.Client
	timeout time.Duration
	retry   retry.Config
	logger  zerolog.Logger
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

func (r RateLimitError) RetryDelay() time.Duration {
	return r.RetryAfter
}

func NewOpenAIEvaluator(apiKey string, opts OpenAIOptions) *OpenAIEvaluator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	opts.Retry.Retryable = Retryable
	opts.Retry.Logger = opts.Logger
	return &OpenAIEvaluator{
		client:  newClient(apiKey, opts),
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
}

// OpenAIFactory binds options once; the API key arrives per scoring batch.
func OpenAIFactory(opts OpenAIOptions) Factory {
	return func(apiKey string) Evaluator {
		return NewOpenAIEvaluator(apiKey, opts)
	}
}

func newClient(apiKey string, opts OpenAIOptions) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(opts.BaseURL) != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	return openai.NewClientWithConfig(cfg)
}

func (e *OpenAIEvaluator) Evaluate(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
		{Role: openai.ChatMessageRoleUser, Content: req.User},
	}

	return retry.DoWithResult(ctx, e.retry, func() (Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		start := time.Now()
		resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: messages,
			Temperature: zeroTemperature,
			MaxTokens:   req.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		metrics.LLMRequestDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			return Response{}, classify(err)
		}
		if len(resp.Choices) == 0 {
			return Response{}, errors.New("empty completion response")
		}

		metrics.LLMTokens.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokens.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
		e.logger.Debug().
			Str("model", resp.Model).
			Int("prompt_tokens", resp.Usage.PromptTokens).
			Int("completion_tokens", resp.Usage.CompletionTokens).
			Msg("completion generated")

		return Response{
			Content:          resp.Choices[0].Message.Content,
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}, nil
	})
}

// ProbeKey lists models with apiKey to verify it is accepted.
func ProbeKey(ctx context.Context, apiKey string, opts OpenAIOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	_, err := newClient(apiKey, opts).ListModels(ctx)
	return classify(err)
}

// ProbeModel sends a one-token completion to modelID.
func ProbeModel(ctx context.Context, apiKey, modelID string, opts OpenAIOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	_, err := newClient(apiKey, opts).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     modelID,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return classify(err)
}

// StatusCode extracts the HTTP status of a provider error, 0 when unknown.
func StatusCode(err error) int {
	var rl RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Retryable reports whether a provider error is transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rl RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	if code := StatusCode(err); code != 0 {
		return code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if StatusCode(err) == http.StatusTooManyRequests {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return RateLimitError{RetryAfter: extractRetryAfter(apiErr.Message)}
		}
		return RateLimitError{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("completion request timed out: %w", err)
	}
	return err
}

// extractRetryAfter reads the "Please try again in 1.5s" hint of a 429 message.
func extractRetryAfter(msg string) time.Duration {
	m := retryHint.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	unit := time.Second
	switch strings.ToLower(m[2]) {
	case "ms":
		unit = time.Millisecond
	case "m":
		unit = time.Minute
	}
	return time.Duration(n * float64(unit))
}

// OpenAIProber runs the settings checks against the configured endpoint.
type OpenAIProber struct {
	Opts OpenAIOptions
}

func (p OpenAIProber) ProbeKey(ctx context.Context, apiKey string) error {
	return ProbeKey(ctx, apiKey, p.Opts)
}

func (p OpenAIProber) ProbeModel(ctx context.Context, apiKey, modelID string) error {
	return ProbeModel(ctx, apiKey, modelID, p.Opts)
}
