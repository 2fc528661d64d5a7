package orchestrator

import (
	"context"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/policy"
)

// Persister saves a finished report. It is not assumed to be idempotent.
type Persister interface {
	SaveSession(ctx context.Context, report *domain.SessionReport) (string, error)
}

// HistoryLog is the durable conversation log, written once per turn.
type HistoryLog interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error
}

// EventSink records session events.
type EventSink interface {
	Record(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{})
}

// Policy decides between retrying and falling back after a generator
// failure.
type Policy interface {
	Evaluate(ctx context.Context, input policy.Input) (string, error)
}

// ChannelFactory builds the capture channel of a session, wired to the
// orchestrator's hooks.
type ChannelFactory func(hooks capture.Hooks) capture.Channel

// FallbackFunc returns the canned question for a slot.
type FallbackFunc func(modality domain.Modality, index int) string

type nopEvents struct{}

func (nopEvents) Record(context.Context, string, domain.EventType, interface{}) {}

type nopHistory struct{}

func (nopHistory) AppendTurn(context.Context, string, domain.Turn) error { return nil }
