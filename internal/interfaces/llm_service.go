package interfaces

import "context"

// CompletionRequest is one prompt sent to an LLM provider
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// CompletionResponse is the raw provider output
type CompletionResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// LLMProvider generates completions for insight prompts
type LLMProvider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	IsAvailable() bool
}
