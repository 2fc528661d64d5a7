package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// recordEvent records an event to the store and pushes it to the session's
// listeners.
func (s *Service) recordEvent(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) error {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		Ts:        s.now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(sessionID, event)
	}
	return s.store.CreateEvent(ctx, event)
}

// Record implements orchestrator.EventSink. Recording failures never affect
// the session.
func (s *Service) Record(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, sessionID, eventType, payload); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"session_id": sessionID,
			"event":      eventType,
		}).Warn("failed to record event")
	}
}

// ListEvents returns the recorded events of a session.
func (s *Service) ListEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.sessionRecord(ctx, sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, sessionID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}
