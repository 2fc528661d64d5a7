// Package capture implements the recording channels that turn a device into
// a CapturedOutput: a continuous speech transcript or a time-bounded set of
// sampled video frames.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Device is a camera or microphone handle owned by one session.
type Device interface {
	Acquire(ctx context.Context) error
	Release() error
}

// Recognition is one speech recognition result. Only Final results belong
// in a transcript.
type Recognition struct {
	Text  string
	Final bool
}

// RecognitionStream is one continuous-listening session of a recognizer.
// Results is closed once the stream has ended and every final result has
// been delivered. Stop must be idempotent.
type RecognitionStream interface {
	Results() <-chan Recognition
	Stop()
}

// Recognizer is a speech-to-text device.
type Recognizer interface {
	Device
	Listen(ctx context.Context) (RecognitionStream, error)
}

// ErrNoFrame is returned by Snapshot when no new frame is available.
var ErrNoFrame = errors.New("no camera frame available")

// Camera is a video device sampled by snapshot.
type Camera interface {
	Device
	Enabled() bool
	Snapshot() (domain.Frame, error)
}

// FrameBuffer is implemented by cameras that hold uploaded frames between
// snapshots. Buffered frames are discarded when a capture starts.
type FrameBuffer interface {
	DiscardFrames()
}

// Channel is the start/stop lifecycle of one recording modality. At most one
// capture is active per channel.
type Channel interface {
	Modality() domain.Modality
	// Open acquires the device. It must succeed before Start.
	Open(ctx context.Context) error
	Start(ctx context.Context, questionIndex int) error
	// Stop settles the capture and returns its output. It returns only after
	// every buffered result has been flushed.
	Stop(ctx context.Context) (domain.CapturedOutput, error)
	Active() bool
	// Close cancels any capture in progress and releases the device.
	Close() error
}

// Hooks are optional notifications from a channel. They are called without
// channel locks held and may call back into the channel.
type Hooks struct {
	// OnFlush fires when a time-bounded capture ends on its own. The output
	// is collected with Stop.
	OnFlush func(questionIndex int)
	// OnRestart fires when a speech stream ended spontaneously and was
	// restarted.
	OnRestart func(questionIndex int)
	// OnFailure fires when the device fails mid-capture.
	OnFailure func(questionIndex int, err error)
	// OnFrame fires for every sampled frame.
	OnFrame func(questionIndex int)
}

func (h Hooks) flush(i int) {
	if h.OnFlush != nil {
		h.OnFlush(i)
	}
}

func (h Hooks) restart(i int) {
	if h.OnRestart != nil {
		h.OnRestart(i)
	}
}

func (h Hooks) failure(i int, err error) {
	if h.OnFailure != nil {
		h.OnFailure(i, err)
	}
}

func (h Hooks) frame(i int) {
	if h.OnFrame != nil {
		h.OnFrame(i)
	}
}

// deviceError tags err as ErrDeviceUnavailable unless it already is.
func deviceError(op string, err error) error {
	if errors.Is(err, domain.ErrDeviceUnavailable) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrDeviceUnavailable, err)
}
