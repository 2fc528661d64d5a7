package service

import (
	"context"
	"time"
)

// RunIdleReaper tears down sessions that have not been touched for the idle
// timeout until ctx is done.
func (s *Service) RunIdleReaper(ctx context.Context) {
	ticker := time.NewTicker(s.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepIdleSessions()
		}
	}
}

func (s *Service) sweepIdleSessions() int {
	now := s.now()
	reaped := 0
	for _, id := range s.sessions.Keys() {
		orch, ok := s.sessions.Peek(id)
		if !ok {
			continue
		}
		idle := now.Sub(orch.LastActivity())
		if idle < s.config.SessionIdleTimeout {
			continue
		}
		if hasUnsavedReport(orch.Snapshot()) {
			s.log.WithField("session_id", id).Debug("not reaping session with an unsaved report")
			continue
		}
		s.log.WithField("session_id", id).WithField("idle", idle.Round(time.Second)).Info("reaping idle session")
		if s.sessions.Remove(id) {
			reaped++
		}
	}
	return reaped
}
