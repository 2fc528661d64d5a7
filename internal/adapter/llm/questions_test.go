package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/mockinterview/internal/domain"
)

type stubClient struct {
	content string
	err     error
	last    *ChatCompletionRequest
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &ChatCompletionResponse{Choices: []Choice{{Message: &ChatMessage{Role: "assistant", Content: s.content}}}}, nil
}

func newGenerator(c LLMClient) *QuestionGenerator {
	return NewQuestionGenerator(c, "gpt-test", 0.7, logrus.New())
}

func TestQuestionGenerator_ParsesFencedJSON(t *testing.T) {
	client := &stubClient{content: "```json\n{\"questionText\": \"How do you design for failure?\"}\n```"}
	g := newGenerator(client)

	q, err := g.NextQuestion(context.Background(), "I build APIs.", "backend engineer", []string{"Tell me about yourself."})
	require.NoError(t, err)
	assert.Equal(t, "How do you design for failure?", q)

	require.NotNil(t, client.last)
	assert.Equal(t, "gpt-test", client.last.Model)
	prompt := client.last.Messages[1].Content
	assert.Contains(t, prompt, "backend engineer")
	assert.Contains(t, prompt, "I build APIs.")
	assert.Contains(t, prompt, "\n- Tell me about yourself.")
}

func TestQuestionGenerator_MissingField(t *testing.T) {
	g := newGenerator(&stubClient{content: `{"question": "wrong key"}`})

	_, err := g.NextQuestion(context.Background(), "", "r", nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoMoreQuestions)
}

func TestQuestionGenerator_InvalidJSON(t *testing.T) {
	g := newGenerator(&stubClient{content: "Sure! Here is a question: why Go?"})

	_, err := g.NextQuestion(context.Background(), "", "r", nil)
	assert.Error(t, err)
}

func TestQuestionGenerator_RepeatIsNoMoreQuestions(t *testing.T) {
	g := newGenerator(&stubClient{content: `{"questionText": "tell me about yourself."}`})

	_, err := g.NextQuestion(context.Background(), "x", "r", []string{"Tell me about yourself."})
	assert.ErrorIs(t, err, domain.ErrNoMoreQuestions)
}

func TestQuestionGenerator_TransportError(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	g := newGenerator(&stubClient{err: boom})

	_, err := g.NextQuestion(context.Background(), "x", "r", nil)
	assert.ErrorIs(t, err, boom)
}

func TestQuestionGenerator_WithMockClient(t *testing.T) {
	g := newGenerator(NewMockClient())

	first, err := g.NextQuestion(context.Background(), "answer", "r", []string{"seed"})
	require.NoError(t, err)
	second, err := g.NextQuestion(context.Background(), "answer", "r", []string{"seed", first})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNewLLMClient_Mode(t *testing.T) {
	log := logrus.New()
	assert.IsType(t, &MockClient{}, NewLLMClient(ModeMock, "", "", 0, 1, log))
	assert.IsType(t, &Client{}, NewLLMClient("", "http://localhost", "", 0, 1, log))
}
