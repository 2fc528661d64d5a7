package llm

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ModeMock selects the mock client.
const ModeMock = "MOCK"

// NewLLMClient creates an LLM client for the given mode.
// If mode is MOCK, returns a MockClient; otherwise returns a real Client.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration, maxAttempts int, log logrus.FieldLogger) LLMClient {
	if mode == ModeMock {
		log.Info("LLM mode is MOCK, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout, maxAttempts)
}
