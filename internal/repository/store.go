// Package store persists interview sessions, their durable turn log, the
// final reports and the session event trace.
package store

import (
	"context"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionState(ctx context.Context, sessionID string, state domain.SessionState) error

	// Turn log operations
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// Report operations
	SaveReport(ctx context.Context, report *domain.SessionReport) (string, error)
	GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
