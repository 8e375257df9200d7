package ai

import "context"

// Request is one chat-completion call expecting a JSON object reply.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

func (r Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Response, error)
}

// Factory builds an evaluator bound to one API credential.
type Factory func(apiKey string) Evaluator
