package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Frame sampling defaults: 15 frames over a 30 second window.
const (
	DefaultFrameInterval = 2 * time.Second
	DefaultFrameWindow   = 30 * time.Second
)

// FrameConfig configures a FrameChannel.
type FrameConfig struct {
	Interval time.Duration
	Window   time.Duration
}

// FrameChannel samples a camera at a fixed interval for at most one window.
// Each capture runs in its own epoch; timers that fire after their epoch was
// sealed do nothing, so a late tick can never write into the next turn.
type FrameChannel struct {
	camera Camera
	clock  Clock
	cfg    FrameConfig
	hooks  Hooks
	log    logrus.FieldLogger

	mu      sync.Mutex
	opened  bool
	closed  bool
	epoch   *frameEpoch
	flushed *flushedCapture
}

type frameEpoch struct {
	questionIndex int
	frames        []domain.Frame
	stopTick      func()
	stopTimer     func() bool
	sealed        bool
}

type flushedCapture struct {
	questionIndex int
	output        domain.CapturedOutput
}

// NewFrameChannel creates a frame channel. Zero config values take the
// defaults.
func NewFrameChannel(camera Camera, clock Clock, cfg FrameConfig, hooks Hooks, log logrus.FieldLogger) *FrameChannel {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFrameInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultFrameWindow
	}
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FrameChannel{
		camera: camera,
		clock:  clock,
		cfg:    cfg,
		hooks:  hooks,
		log:    log.WithField("modality", domain.ModalityVideo),
	}
}

var _ Channel = (*FrameChannel)(nil)

func (c *FrameChannel) Modality() domain.Modality { return domain.ModalityVideo }

func (c *FrameChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.opened {
		return nil
	}
	if err := c.camera.Acquire(ctx); err != nil {
		return deviceError("acquire camera", err)
	}
	c.opened = true
	return nil
}

// Start begins a new capture for questionIndex with an empty buffer.
func (c *FrameChannel) Start(_ context.Context, questionIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return domain.ErrSessionClosed
	case !c.opened:
		return fmt.Errorf("camera not acquired: %w", domain.ErrDeviceUnavailable)
	case c.epoch != nil:
		return domain.ErrCaptureActive
	}

	c.flushed = nil
	if buf, ok := c.camera.(FrameBuffer); ok {
		buf.DiscardFrames()
	}
	e := &frameEpoch{questionIndex: questionIndex}
	e.stopTick = c.clock.Every(c.cfg.Interval, func() { c.tick(e) })
	e.stopTimer = c.clock.AfterFunc(c.cfg.Window, func() { c.timeout(e) })
	c.epoch = e

	c.log.WithField("question_index", questionIndex).Debug("frame capture started")
	return nil
}

// Stop ends the capture and returns the sampled frames. After a window
// timeout it returns the flushed frames once.
func (c *FrameChannel) Stop(_ context.Context) (domain.CapturedOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.epoch; e != nil {
		c.sealLocked(e)
		return domain.FrameSetOutput(e.frames), nil
	}
	if f := c.flushed; f != nil {
		c.flushed = nil
		return f.output, nil
	}
	return domain.CapturedOutput{}, domain.ErrCaptureInactive
}

// Active reports whether frames are being sampled or a flushed capture is
// waiting to be collected.
func (c *FrameChannel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != nil || c.flushed != nil
}

// Close cancels both timers of an active capture and releases the camera.
func (c *FrameChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.epoch != nil {
		c.sealLocked(c.epoch)
	}
	c.flushed = nil
	opened := c.opened
	c.opened = false
	c.mu.Unlock()

	if !opened {
		return nil
	}
	if err := c.camera.Release(); err != nil {
		return fmt.Errorf("failed to release camera: %w", err)
	}
	return nil
}

func (c *FrameChannel) tick(e *frameEpoch) {
	c.mu.Lock()
	if c.epoch != e || e.sealed {
		c.mu.Unlock()
		return
	}
	if !c.camera.Enabled() {
		c.mu.Unlock()
		return
	}
	frame, err := c.camera.Snapshot()
	if err != nil {
		c.mu.Unlock()
		entry := c.log.WithError(err).WithField("question_index", e.questionIndex)
		if errors.Is(err, ErrNoFrame) {
			entry.Debug("no new frame for tick")
		} else {
			entry.Warn("frame snapshot failed")
		}
		return
	}
	frame.Index = len(e.frames)
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = c.clock.Now()
	}
	e.frames = append(e.frames, frame)
	c.mu.Unlock()

	c.hooks.frame(e.questionIndex)
}

func (c *FrameChannel) timeout(e *frameEpoch) {
	c.mu.Lock()
	if c.epoch != e || e.sealed {
		c.mu.Unlock()
		return
	}
	c.sealLocked(e)
	c.flushed = &flushedCapture{questionIndex: e.questionIndex, output: domain.FrameSetOutput(e.frames)}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"question_index": e.questionIndex,
		"frames":         len(e.frames),
	}).Debug("frame capture window elapsed")
	c.hooks.flush(e.questionIndex)
}

func (c *FrameChannel) sealLocked(e *frameEpoch) {
	e.sealed = true
	e.stopTick()
	e.stopTimer()
	if c.epoch == e {
		c.epoch = nil
	}
}
