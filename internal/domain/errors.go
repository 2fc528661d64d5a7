package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable means the camera or microphone cannot be used.
	// It is fatal to the current capture and recoverable by retrying start.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrQuestionGenerationFailed means the question generator failed or
	// returned content without a question.
	ErrQuestionGenerationFailed = errors.New("question generation failed")
	// ErrNoMoreQuestions means the generator has no unique question left.
	ErrNoMoreQuestions = errors.New("no more unique questions available")
	// ErrClassificationFailed means a single frame could not be classified.
	ErrClassificationFailed = errors.New("frame classification failed")
	// ErrPersistenceFailed means the session report could not be saved.
	ErrPersistenceFailed = errors.New("session persistence failed")

	ErrInvalidState     = errors.New("invalid state for operation")
	ErrSequenceComplete = errors.New("question sequence already complete")
	ErrCaptureActive    = errors.New("a capture is already active")
	ErrCaptureInactive  = errors.New("no capture is active")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
)

// QuestionGenerationError carries the cause of a failed generator call.
type QuestionGenerationError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *QuestionGenerationError) Error() string {
	return fmt.Sprintf("question generation for slot %d failed (attempt %d): %v", e.Index, e.Attempts, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *QuestionGenerationError) Unwrap() []error {
	return []error{ErrQuestionGenerationFailed, e.Err}
}

// NoMoreQuestions reports whether the generator ran out of questions rather
// than failing.
func (e *QuestionGenerationError) NoMoreQuestions() bool {
	return errors.Is(e.Err, ErrNoMoreQuestions)
}

// PersistenceError carries the cause of a failed save. The report stays
// available for a retry.
type PersistenceError struct {
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistenceFailed, e.Err}
}
