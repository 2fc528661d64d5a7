package ws

import (
	"time"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Message types from the browser to the server.
const (
	TypeHello        = "hello"
	TypeSpeechResult = "speech_result"
	TypeSpeechEnd    = "speech_end"
	TypeCameraState  = "camera_state"
	TypeFrame        = "frame"
)

// Message types from the server to the browser.
const (
	TypeHelloAck      = "hello_ack"
	TypeStartListen   = "start_listening"
	TypeStopListening = "stop_listening"
	TypeEvent         = "event"
	TypeError         = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage binds a connection to an interview session.
type HelloMessage struct {
	BaseMessage
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	ConnectionID string `json:"connection_id"`
}

// SpeechResultMessage carries one browser speech recognition result.
type SpeechResultMessage struct {
	BaseMessage
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// CameraStateMessage reports whether the camera is switched on.
type CameraStateMessage struct {
	BaseMessage
	Enabled bool `json:"enabled"`
}

// FrameMessage uploads the latest camera image. Data is base64 in JSON.
type FrameMessage struct {
	BaseMessage
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
	CapturedAt  int64  `json:"captured_at,omitempty"`
}

// EventMessage pushes a recorded session event.
type EventMessage struct {
	BaseMessage
	Event *domain.Event `json:"event"`
}

// ErrorMessage is sent when a message cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeRateLimited     = "rate_limited"
)

func newBase(msgType, sessionID string) BaseMessage {
	return BaseMessage{Type: msgType, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}
