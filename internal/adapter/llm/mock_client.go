package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MockClient is a mock implementation of LLMClient for testing.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a mock question as JSON content.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	responseContent := m.generateMockResponse(req)

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: responseContent,
				},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(responseContent) / 4,
			TotalTokens:      m.estimateTokens(req) + len(responseContent)/4,
		},
	}, nil
}

// generateMockResponse numbers the question after the questions already
// listed in the prompt, so consecutive calls never repeat.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	asked := strings.Count(lastUserMessage, "\n- ")
	content, _ := json.Marshal(map[string]string{
		"questionText": fmt.Sprintf("[MOCK] Can you walk me through a challenge you solved (question %d)?", asked+1),
	})
	return "```json\n" + string(content) + "\n```"
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}
