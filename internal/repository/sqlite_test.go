package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/mockinterview/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seedSession(t *testing.T, store *SQLiteStore, id string) {
	t.Helper()
	session := &domain.Session{
		SessionID:    id,
		UserID:       "u1",
		Role:         "backend engineer",
		Modality:     domain.ModalitySpeech,
		PlanLength:   5,
		SeedQuestion: "Tell me about yourself.",
		State:        domain.SessionStateSetup,
		CreatedAt:    time.Now(),
		Metadata:     json.RawMessage(`{"source":"web"}`),
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestSQLiteStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seedSession(t, store, "s1")

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.Role != "backend engineer" || got.Modality != domain.ModalitySpeech || got.PlanLength != 5 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.SeedQuestion != "Tell me about yourself." {
		t.Fatalf("unexpected seed question: %q", got.SeedQuestion)
	}

	if err := store.UpdateSessionState(ctx, "s1", domain.SessionStateInProgress); err != nil {
		t.Fatalf("UpdateSessionState failed: %v", err)
	}
	got, _ = store.GetSession(ctx, "s1")
	if got.State != domain.SessionStateInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", got.State)
	}

	if err := store.UpdateSessionState(ctx, "missing", domain.SessionStateFailed); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	missing, err := store.GetSession(ctx, "missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil session, got %+v, %v", missing, err)
	}
}

func TestSQLiteStoreTurnLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedSession(t, store, "s1")

	now := time.Now()
	turns := []domain.Turn{
		{Index: 0, Question: "Q0", Answer: domain.TextOutput("first answer"), CompletedAt: now},
		{Index: 1, Question: "Q1", Answer: domain.FrameSetOutput([]domain.Frame{{Index: 0, Data: []byte{1}}}), CompletedAt: now},
	}
	for _, turn := range turns {
		if err := store.AppendTurn(ctx, "s1", turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}
	// A repeated write of the same index is ignored.
	if err := store.AppendTurn(ctx, "s1", domain.Turn{Index: 0, Question: "Q0", Answer: domain.TextOutput("changed"), CompletedAt: now}); err != nil {
		t.Fatalf("AppendTurn duplicate failed: %v", err)
	}

	got, err := store.ListTurns(ctx, "s1")
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Answer.Transcript != "first answer" {
		t.Fatalf("turn 0 overwritten: %+v", got[0])
	}
	if got[1].Answer.Modality != domain.ModalityVideo || len(got[1].Answer.Frames) != 0 {
		t.Fatalf("unexpected video turn: %+v", got[1])
	}

	if err := store.AppendTurn(ctx, "unknown", turns[0]); err == nil {
		t.Fatalf("expected foreign key error for unknown session")
	}
}

func TestSQLiteStoreReports(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedSession(t, store, "s1")

	report := &domain.SessionReport{
		ReportID:  "rep_1",
		SessionID: "s1",
		Role:      "backend engineer",
		Modality:  domain.ModalityVideo,
		Turns: []domain.Turn{
			{Index: 0, Question: "Q0", Answer: domain.FrameSetOutput(make([]domain.Frame, 3))},
		},
		Linguistic: domain.LinguisticMetrics{OverallScore: 38, Feedback: []string{"f"}},
		Emotion: &domain.EmotionProfile{
			DominantEmotion: domain.EmotionHappy,
			Breakdown:       map[domain.EmotionLabel]int{domain.EmotionHappy: 100},
		},
		CreatedAt: time.Now(),
	}

	id, err := store.SaveReport(ctx, report)
	if err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if id != "s1" {
		t.Fatalf("unexpected saved id: %s", id)
	}

	if _, err := store.SaveReport(ctx, report); err == nil {
		t.Fatalf("expected duplicate report to fail")
	}

	got, err := store.GetReport(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got == nil || got.Linguistic.OverallScore != 38 || got.Emotion.DominantEmotion != domain.EmotionHappy {
		t.Fatalf("unexpected report: %+v", got)
	}
	if got.Emotion.Breakdown[domain.EmotionHappy] != 100 {
		t.Fatalf("unexpected breakdown: %+v", got.Emotion.Breakdown)
	}

	none, err := store.GetReport(ctx, "s2")
	if err != nil || none != nil {
		t.Fatalf("expected no report, got %+v, %v", none, err)
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedSession(t, store, "s1")

	events := []domain.Event{
		{EventID: "e1", SessionID: "s1", Ts: 100, Type: domain.EventTypeSessionCreated},
		{EventID: "e2", SessionID: "s1", Ts: 200, Type: domain.EventTypeQuestionReady, Payload: json.RawMessage(`{"index":0}`)},
		{EventID: "e3", SessionID: "s1", Ts: 300, Type: domain.EventTypeTurnRecorded},
	}
	for i := range events {
		if err := store.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, "s1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(all) != 3 || all[0].EventID != "e1" {
		t.Fatalf("unexpected events: %+v", all)
	}

	filtered, err := store.GetEvents(ctx, "s1", 100, []string{string(domain.EventTypeQuestionReady)}, 10)
	if err != nil {
		t.Fatalf("GetEvents filtered failed: %v", err)
	}
	if len(filtered) != 1 || string(filtered[0].Payload) != `{"index":0}` {
		t.Fatalf("unexpected filtered events: %+v", filtered)
	}
}
