// Package service hosts interview sessions: it builds an orchestrator per
// session from the configured collaborators, keeps live sessions in a
// bounded registry and tears them down on eviction, deletion or idleness.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/adapter/classifier"
	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/config"
	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/observability"
	"github.com/xiaot623/mockinterview/internal/orchestrator"
	store "github.com/xiaot623/mockinterview/internal/repository"
	"github.com/xiaot623/mockinterview/internal/sequencer"
	"github.com/xiaot623/mockinterview/policy"
)

// Devices hands out the capture devices of a session.
type Devices interface {
	Recognizer(sessionID string) capture.Recognizer
	Camera(sessionID string) capture.Camera
}

// Broadcaster pushes recorded events to live listeners of a session.
type Broadcaster interface {
	Broadcast(sessionID string, event *domain.Event)
}

// Options are the optional collaborators of a Service.
type Options struct {
	Broadcaster Broadcaster
	Metrics     *observability.Metrics
	Clock       capture.Clock
	Log         logrus.FieldLogger
}

type Service struct {
	store        store.Store
	generator    sequencer.Generator
	classifier   classifier.Classifier
	devices      Devices
	config       *config.Config
	policyEngine *policy.Engine
	broadcaster  Broadcaster
	metrics      *observability.Metrics
	clock        capture.Clock
	log          logrus.FieldLogger
	now          func() time.Time

	sessions *lru.Cache[string, *orchestrator.Orchestrator]

	// Evicted sessions whose report has not been saved yet. They stay
	// reachable until the save succeeds or the session is closed.
	mu      sync.Mutex
	unsaved map[string]*orchestrator.Orchestrator
}

func New(store store.Store, generator sequencer.Generator, classifier classifier.Classifier, devices Devices, cfg *config.Config, policyEngine *policy.Engine, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = capture.RealClock{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	s := &Service{
		store:        store,
		generator:    generator,
		classifier:   classifier,
		devices:      devices,
		config:       cfg,
		policyEngine: policyEngine,
		broadcaster:  opts.Broadcaster,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		log:          opts.Log,
		now:          time.Now,
		unsaved:      make(map[string]*orchestrator.Orchestrator),
	}

	sessions, err := lru.NewWithEvict(cfg.MaxSessions, s.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	s.sessions = sessions
	return s, nil
}

// ActiveSessions returns the number of live sessions, including evicted
// sessions still holding an unsaved report.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	parked := len(s.unsaved)
	s.mu.Unlock()
	return s.sessions.Len() + parked
}

// Shutdown tears down every live session.
func (s *Service) Shutdown() {
	s.sessions.Purge()

	s.mu.Lock()
	unsaved := s.unsaved
	s.unsaved = make(map[string]*orchestrator.Orchestrator)
	s.mu.Unlock()
	for id, orch := range unsaved {
		s.log.WithField("session_id", id).Warn("shutting down with an unsaved report")
		s.teardown(id, orch)
	}
}

// onEvicted tears a session down. A session holding an unsaved report gets
// one more save attempt; if that fails it is parked instead.
func (s *Service) onEvicted(sessionID string, orch *orchestrator.Orchestrator) {
	if hasUnsavedReport(orch.Snapshot()) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := orch.SaveReport(ctx)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("keeping evicted session until its report is saved")
			s.mu.Lock()
			s.unsaved[sessionID] = orch
			s.mu.Unlock()
			return
		}
	}
	s.teardown(sessionID, orch)
}

func (s *Service) teardown(sessionID string, orch *orchestrator.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Close(ctx); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("session teardown reported an error")
	}
	if r, ok := s.devices.(interface{ Remove(sessionID string) }); ok {
		r.Remove(sessionID)
	}
	s.log.WithField("session_id", sessionID).Info("session torn down")
}

func hasUnsavedReport(snap domain.Snapshot) bool {
	return snap.ReportReady && !snap.Submitted
}

func (s *Service) takeUnsaved(sessionID string) (*orchestrator.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orch, ok := s.unsaved[sessionID]
	delete(s.unsaved, sessionID)
	return orch, ok
}

// peek finds a live session without touching its recency.
func (s *Service) peek(sessionID string) (*orchestrator.Orchestrator, bool) {
	if orch, ok := s.sessions.Peek(sessionID); ok {
		return orch, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	orch, ok := s.unsaved[sessionID]
	return orch, ok
}

func (s *Service) lookup(sessionID string) (*orchestrator.Orchestrator, error) {
	if orch, ok := s.sessions.Get(sessionID); ok {
		return orch, nil
	}
	s.mu.Lock()
	orch, ok := s.unsaved[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return orch, nil
}

func (s *Service) newChannelFactory(sessionID string, modality domain.Modality, log logrus.FieldLogger) orchestrator.ChannelFactory {
	return func(hooks capture.Hooks) capture.Channel {
		if modality == domain.ModalityVideo {
			return capture.NewFrameChannel(s.devices.Camera(sessionID), s.clock, capture.FrameConfig{
				Interval: s.config.FrameInterval,
				Window:   s.config.FrameWindow,
			}, hooks, log)
		}
		return capture.NewSpeechChannel(s.devices.Recognizer(sessionID), s.clock, capture.SpeechConfig{
			RestartDelay: s.config.SpeechRestartDelay,
		}, hooks, log)
	}
}

// onStateChange mirrors lifecycle transitions into the session record.
func (s *Service) onStateChange(sessionID string) func(domain.SessionState) {
	return func(state domain.SessionState) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.store.UpdateSessionState(ctx, sessionID, state); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to update session state")
		}
		if state.Terminal() {
			s.metrics.SessionFinished(string(state))
		}
	}
}

// reportSaver adapts the store to the orchestrator's persistence
// collaborator.
type reportSaver struct {
	store store.Store
}

func (r reportSaver) SaveSession(ctx context.Context, report *domain.SessionReport) (string, error) {
	return r.store.SaveReport(ctx, report)
}
