package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/mockinterview/internal/adapter/questionbank"
	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/observability"
	"github.com/xiaot623/mockinterview/internal/orchestrator"
	"github.com/xiaot623/mockinterview/internal/sequencer"
)

// CreateSessionRequest describes a new interview session.
type CreateSessionRequest struct {
	UserID   string          `json:"user_id"`
	Role     string          `json:"role"`
	Modality domain.Modality `json:"modality"`
	// PlanLength overrides the configured number of questions when positive.
	PlanLength int `json:"plan_length,omitempty"`
}

// CreateSession registers a session in SETUP. The device is acquired by
// StartSession.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (domain.Snapshot, error) {
	if strings.TrimSpace(req.Role) == "" {
		return domain.Snapshot{}, fmt.Errorf("role is required")
	}
	if req.Modality == "" {
		req.Modality = domain.ModalitySpeech
	}
	if !req.Modality.Valid() {
		return domain.Snapshot{}, fmt.Errorf("unknown modality %q", req.Modality)
	}
	if req.UserID == "" {
		req.UserID = "default_user"
	}
	planLength := s.config.PlanLength
	if req.PlanLength > 0 {
		planLength = req.PlanLength
	}

	var gen sequencer.Generator = s.generator
	if req.Modality == domain.ModalityVideo {
		gen = questionbank.VideoScript{Next: s.generator}
	}
	seq, err := sequencer.New(req.Role, planLength, s.config.SeedQuestion, gen)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create sequencer: %w", err)
	}

	sessionID := "sess_" + uuid.New().String()[:8]
	log := observability.SessionLogger(s.log, sessionID, string(req.Modality))

	orch, err := orchestrator.New(orchestrator.Config{
		SessionID:             sessionID,
		UserID:                req.UserID,
		Role:                  req.Role,
		Modality:              req.Modality,
		MaxGenerationAttempts: s.config.MaxGenerationAttempts,
		ClassifyConcurrency:   s.config.ClassifierConcurrency,
		StopTimeout:           s.config.SpeechFlushTimeout,
	}, orchestrator.Deps{
		Sequencer:     seq,
		NewChannel:    s.newChannelFactory(sessionID, req.Modality, log),
		Classifier:    s.classifier,
		Persister:     reportSaver{store: s.store},
		History:       s.store,
		Events:        s,
		Policy:        s.policyEngine,
		Fallback:      questionbank.Fallback,
		Metrics:       s.metrics,
		Log:           s.log,
		OnStateChange: s.onStateChange(sessionID),
		Now:           s.now,
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create session: %w", err)
	}

	now := s.now()
	session := &domain.Session{
		SessionID:    sessionID,
		UserID:       req.UserID,
		Role:         req.Role,
		Modality:     req.Modality,
		PlanLength:   planLength,
		SeedQuestion: s.config.SeedQuestion,
		State:        domain.SessionStateSetup,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.sessions.Add(sessionID, orch)
	s.metrics.SessionOpened()
	s.Record(ctx, sessionID, domain.EventTypeSessionCreated, map[string]interface{}{
		"user_id":     req.UserID,
		"role":        req.Role,
		"modality":    req.Modality,
		"plan_length": planLength,
	})
	log.WithField("role", req.Role).Info("session created")

	return orch.Snapshot(), nil
}

// StartSession acquires the session's capture device.
func (s *Service) StartSession(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	err = orch.Setup(ctx)
	return orch.Snapshot(), err
}

// GetSession returns the live state of a session, or the stored record of
// one that is no longer live.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	if orch, ok := s.peek(sessionID); ok {
		return orch.Snapshot(), nil
	}
	session, err := s.sessionRecord(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		SessionID:  session.SessionID,
		Role:       session.Role,
		Modality:   session.Modality,
		State:      session.State,
		PlanLength: session.PlanLength,
	}, nil
}

// StartCapture opens the capture channel for the current question.
func (s *Service) StartCapture(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	err = orch.StartCapture(ctx)
	return orch.Snapshot(), err
}

// StopCapture settles the capture and submits it as the answer.
func (s *Service) StopCapture(ctx context.Context, sessionID string) (orchestrator.SubmitResult, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return orchestrator.SubmitResult{}, err
	}
	return orch.StopCapture(ctx)
}

// SubmitAnswer submits a typed transcript as the answer.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, transcript string) (orchestrator.SubmitResult, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return orchestrator.SubmitResult{}, err
	}
	return orch.SubmitAnswer(ctx, domain.TextOutput(transcript))
}

// RetryAnswer retries question generation for the pending answer.
func (s *Service) RetryAnswer(ctx context.Context, sessionID string) (orchestrator.SubmitResult, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return orchestrator.SubmitResult{}, err
	}
	return orch.RetryAnswer(ctx)
}

// Finalize evaluates a completed session and saves its report.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return orch.Finalize(ctx)
}

// SaveReport retries the persistence step of a finished session.
func (s *Service) SaveReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	orch, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	report, err := orch.SaveReport(ctx)
	if err != nil {
		return report, err
	}
	// An evicted session only lingered for this save.
	if parked, ok := s.takeUnsaved(sessionID); ok {
		s.teardown(sessionID, parked)
	}
	return report, nil
}

// GetReport returns the report of a live session or the persisted copy.
func (s *Service) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	if orch, ok := s.peek(sessionID); ok {
		if report, ready := orch.Report(); ready {
			return report, nil
		}
	}

	report, err := s.store.GetReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if report != nil {
		return report, nil
	}
	if _, err := s.sessionRecord(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("report not ready: %w", domain.ErrInvalidState)
}

// ListTurns returns the durable conversation log of a session.
func (s *Service) ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	if _, err := s.sessionRecord(ctx, sessionID); err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	return turns, nil
}

// CloseSession tears a live session down.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	removed := s.sessions.Remove(sessionID)
	// Closing is explicit, so a session parked with an unsaved report goes too.
	if orch, ok := s.takeUnsaved(sessionID); ok {
		s.teardown(sessionID, orch)
		return nil
	}
	if !removed {
		if _, err := s.sessionRecord(ctx, sessionID); err != nil {
			return err
		}
		return fmt.Errorf("session %s is not live: %w", sessionID, domain.ErrSessionClosed)
	}
	return nil
}

func (s *Service) sessionRecord(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return session, nil
}

// IsRetryable reports whether err leaves the session waiting for a retry.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrQuestionGenerationFailed) || errors.Is(err, domain.ErrPersistenceFailed)
}
