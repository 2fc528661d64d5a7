package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/mockinterview/internal/domain"
)

func TestIdleSweepReapsStaleSessions(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t, testConfig(), &stubDevice{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale, err := svc.CreateSession(ctx, CreateSessionRequest{Role: "QA"})
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	fresh, err := svc.CreateSession(ctx, CreateSessionRequest{Role: "QA"})
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, svc.sweepIdleSessions())
	assert.Equal(t, 1, svc.ActiveSessions())

	session, err := db.GetSession(ctx, stale.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStateFailed, session.State)

	got, err := svc.GetSession(ctx, fresh.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStateSetup, got.State)
}

func TestIdleSweepKeepsUnsavedReport(t *testing.T) {
	ctx := context.Background()
	svc, db := newFlakyService(t, testConfig())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	id := finishUnsaved(t, svc)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 0, svc.sweepIdleSessions())

	report, err := svc.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Len(t, report.Turns, 3)

	db.failing.Store(false)
	_, err = svc.SaveReport(ctx, id)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, svc.sweepIdleSessions())
	stored, err := svc.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, report.ReportID, stored.ReportID)
}

func TestIdleReaperStopsWithContext(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig(), &stubDevice{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunIdleReaper(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
