package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/domain"
)

const systemPrompt = "You are an experienced technical interviewer conducting a mock interview. " +
	"Ask exactly one new question at a time. Never repeat a question that was already asked. " +
	`Reply only with JSON of the form {"questionText": "..."}.`

// QuestionGenerator authors the next interview question with an LLM.
type QuestionGenerator struct {
	client      LLMClient
	model       string
	temperature float64
	log         logrus.FieldLogger
}

// NewQuestionGenerator creates a question generator.
func NewQuestionGenerator(client LLMClient, model string, temperature float64, log logrus.FieldLogger) *QuestionGenerator {
	return &QuestionGenerator{client: client, model: model, temperature: temperature, log: log}
}

type questionPayload struct {
	QuestionText string `json:"questionText"`
}

// NextQuestion asks the model for a follow-up to lastAnswer. A response
// that repeats an asked question yields domain.ErrNoMoreQuestions; a
// response without a question is an error.
func (g *QuestionGenerator) NextQuestion(ctx context.Context, lastAnswer, role string, asked []string) (string, error) {
	temperature := g.temperature
	req := &ChatCompletionRequest{
		Model: g.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(lastAnswer, role, asked)},
		},
		Temperature: &temperature,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to request question: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", errors.New("LLM response has no choices")
	}

	question, err := ParseQuestion(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	for _, q := range asked {
		if strings.EqualFold(strings.TrimSpace(q), question) {
			g.log.WithField("question", question).Debug("LLM repeated an asked question")
			return "", domain.ErrNoMoreQuestions
		}
	}
	return question, nil
}

// ParseQuestion extracts questionText from a model reply, tolerating a
// markdown code fence around the JSON.
func ParseQuestion(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload questionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return "", fmt.Errorf("failed to parse question payload: %w", err)
	}
	question := strings.TrimSpace(payload.QuestionText)
	if question == "" {
		return "", errors.New("question payload missing questionText")
	}
	return question, nil
}

func buildPrompt(lastAnswer, role string, asked []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role being interviewed for: %s\n", role)
	if strings.TrimSpace(lastAnswer) == "" {
		b.WriteString("The candidate gave no answer to the last question.\n")
	} else {
		fmt.Fprintf(&b, "Candidate's last answer: %s\n", lastAnswer)
	}
	b.WriteString("Questions already asked:")
	for _, q := range asked {
		b.WriteString("\n- ")
		b.WriteString(q)
	}
	b.WriteString("\nAsk the next question.")
	return b.String()
}
