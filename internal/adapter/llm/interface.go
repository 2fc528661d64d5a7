// Package llm talks to an OpenAI-compatible chat completion endpoint and
// uses it to author interview questions.
package llm

import "context"

// LLMClient defines the interface for LLM API operations.
type LLMClient interface {
	// CreateChatCompletion sends a chat completion request (non-streaming).
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
