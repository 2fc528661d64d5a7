// Package domain defines the core domain models for interview sessions.
package domain

// Modality identifies the recording modality a session captures answers with.
type Modality string

const (
	ModalitySpeech Modality = "speech"
	ModalityVideo  Modality = "video"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m == ModalitySpeech || m == ModalityVideo
}

// SessionState represents the lifecycle state of a session orchestrator.
type SessionState string

const (
	SessionStateSetup      SessionState = "SETUP"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStateFinalizing SessionState = "FINALIZING"
	SessionStateComplete   SessionState = "COMPLETE"
	SessionStateFailed     SessionState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionStateComplete || s == SessionStateFailed
}

// SequencerState represents the state of the question sequencer.
type SequencerState string

const (
	SequencerAwaitingAnswer SequencerState = "AWAITING_ANSWER"
	SequencerAdvancing      SequencerState = "ADVANCING"
	SequencerComplete       SequencerState = "COMPLETE"
)

// EmotionLabel is one of the closed set of facial-emotion labels.
type EmotionLabel string

const (
	EmotionHappy    EmotionLabel = "happy"
	EmotionNeutral  EmotionLabel = "neutral"
	EmotionSad      EmotionLabel = "sad"
	EmotionAngry    EmotionLabel = "angry"
	EmotionDisgust  EmotionLabel = "disgust"
	EmotionFear     EmotionLabel = "fear"
	EmotionSurprise EmotionLabel = "surprise"
)

// EmotionLabels is the fixed enumeration in tie-break order.
var EmotionLabels = []EmotionLabel{
	EmotionHappy,
	EmotionNeutral,
	EmotionSad,
	EmotionAngry,
	EmotionDisgust,
	EmotionFear,
	EmotionSurprise,
}

// ParseEmotionLabel maps a classifier label onto the enumeration.
// The classifier model reports "anger" for the angry class.
func ParseEmotionLabel(raw string) (EmotionLabel, bool) {
	switch raw {
	case "anger":
		return EmotionAngry, true
	case "surprised":
		return EmotionSurprise, true
	}
	for _, l := range EmotionLabels {
		if string(l) == raw {
			return l, true
		}
	}
	return "", false
}

// EventType represents the type of a session event.
type EventType string

const (
	EventTypeSessionCreated           EventType = "session_created"
	EventTypeSessionStarted           EventType = "session_started"
	EventTypeSessionFailed            EventType = "session_failed"
	EventTypeQuestionReady            EventType = "question_ready"
	EventTypeCaptureStarted           EventType = "capture_started"
	EventTypeCaptureStopped           EventType = "capture_stopped"
	EventTypeCaptureFlushed           EventType = "capture_flushed"
	EventTypeCaptureRestarted         EventType = "capture_restarted"
	EventTypeCaptureFailed            EventType = "capture_failed"
	EventTypeTurnRecorded             EventType = "turn_recorded"
	EventTypeQuestionGenerationFailed EventType = "question_generation_failed"
	EventTypeQuestionFallback         EventType = "question_fallback"
	EventTypeSessionComplete          EventType = "session_complete"
	EventTypePersistenceFailed        EventType = "persistence_failed"
	EventTypeReportSaved              EventType = "report_saved"
	EventTypeSessionClosed            EventType = "session_closed"
)
