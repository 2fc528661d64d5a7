package domain

import (
	"encoding/json"
	"time"
)

// Session is the durable record of an interview session.
type Session struct {
	SessionID    string          `json:"session_id"`
	UserID       string          `json:"user_id"`
	Role         string          `json:"role"`
	Modality     Modality        `json:"modality"`
	PlanLength   int             `json:"plan_length"`
	SeedQuestion string          `json:"seed_question,omitempty"`
	State        SessionState    `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Event is a trace event recorded against a session.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Snapshot is the externally visible state of a live session.
type Snapshot struct {
	SessionID      string         `json:"session_id"`
	Role           string         `json:"role"`
	Modality       Modality       `json:"modality"`
	State          SessionState   `json:"state"`
	SequencerState SequencerState `json:"sequencer_state"`
	QuestionIndex  int            `json:"question_index"`
	Question       string         `json:"question,omitempty"`
	PlanLength     int            `json:"plan_length"`
	TurnsRecorded  int            `json:"turns_recorded"`
	Capturing      bool           `json:"capturing"`
	PendingAnswer  bool           `json:"pending_answer"`
	ReportReady    bool           `json:"report_ready"`
	Submitted      bool           `json:"submitted"`
	LastError      string         `json:"last_error,omitempty"`
}
