// Package policy decides how a session recovers when the question generator
// fails: surface the failure so the caller can retry, or fill the slot with
// a canned question.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decisions returned by the question policy.
const (
	DecisionRetry    = "retry"
	DecisionFallback = "fallback"
)

// Input is what the policy sees about a failed generation.
type Input struct {
	SessionID       string `json:"session_id"`
	Role            string `json:"role"`
	Modality        string `json:"modality"`
	QuestionIndex   int    `json:"question_index"`
	PlanLength      int    `json:"plan_length"`
	Attempts        int    `json:"attempts"`
	MaxAttempts     int    `json:"max_attempts"`
	NoMoreQuestions bool   `json:"no_more_questions"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.question_policy.decision"),
		rego.Module("question_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns DecisionRetry or DecisionFallback.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionRetry, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		if val == DecisionRetry || val == DecisionFallback {
			return val, nil
		}
		return "", fmt.Errorf("policy returned unknown decision %q", val)
	default:
		return "", fmt.Errorf("policy returned unexpected type %T", val)
	}
}

// DefaultPolicy falls back once the generator has no unique question left or
// has failed max_attempts times for the same slot.
const DefaultPolicy = `
package question_policy

default decision := "retry"

decision := "fallback" if fallback

fallback if input.no_more_questions

fallback if {
	input.max_attempts > 0
	input.attempts >= input.max_attempts
}
`
