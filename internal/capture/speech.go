package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// SpeechConfig configures a SpeechChannel.
type SpeechConfig struct {
	// RestartDelay is waited before listening again after the recognizer
	// ended a stream on its own. Zero restarts immediately.
	RestartDelay time.Duration
}

// SpeechChannel accumulates final recognition results into a transcript.
// Streams the recognizer ends on its own are restarted transparently; a
// caller only sees the capture end through Stop, or through
// ErrDeviceUnavailable when the recognizer cannot listen at all.
type SpeechChannel struct {
	rec   Recognizer
	clock Clock
	cfg   SpeechConfig
	hooks Hooks
	log   logrus.FieldLogger

	mu     sync.Mutex
	opened bool
	closed bool
	epoch  *speechEpoch
}

type speechEpoch struct {
	questionIndex int
	ctx           context.Context
	cancel        context.CancelFunc
	stream        RecognitionStream
	parts         []string
	restarts      int
	fatal         error
	stopRequested bool
	stopCh        chan struct{}
	done          chan struct{}
}

// NewSpeechChannel creates a speech channel.
func NewSpeechChannel(rec Recognizer, clock Clock, cfg SpeechConfig, hooks Hooks, log logrus.FieldLogger) *SpeechChannel {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SpeechChannel{
		rec:   rec,
		clock: clock,
		cfg:   cfg,
		hooks: hooks,
		log:   log.WithField("modality", domain.ModalitySpeech),
	}
}

var _ Channel = (*SpeechChannel)(nil)

func (c *SpeechChannel) Modality() domain.Modality { return domain.ModalitySpeech }

func (c *SpeechChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.opened {
		return nil
	}
	if err := c.rec.Acquire(ctx); err != nil {
		return deviceError("acquire microphone", err)
	}
	c.opened = true
	return nil
}

// Start begins continuous listening for questionIndex with an empty
// transcript.
func (c *SpeechChannel) Start(ctx context.Context, questionIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return domain.ErrSessionClosed
	case !c.opened:
		return fmt.Errorf("microphone not acquired: %w", domain.ErrDeviceUnavailable)
	case c.epoch != nil:
		return domain.ErrCaptureActive
	}

	// Listening outlives the request that started it.
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := c.rec.Listen(lctx)
	if err != nil {
		cancel()
		return deviceError("start listening", err)
	}

	e := &speechEpoch{
		questionIndex: questionIndex,
		ctx:           lctx,
		cancel:        cancel,
		stream:        stream,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	c.epoch = e
	go c.run(e, stream)

	c.log.WithField("question_index", questionIndex).Debug("speech capture started")
	return nil
}

// Stop signals the recognizer, waits for every pending final result and
// returns the transcript. If the device failed mid-capture the partial
// transcript is returned together with an ErrDeviceUnavailable error.
func (c *SpeechChannel) Stop(ctx context.Context) (domain.CapturedOutput, error) {
	c.mu.Lock()
	e := c.epoch
	if e == nil {
		c.mu.Unlock()
		return domain.CapturedOutput{}, domain.ErrCaptureInactive
	}
	c.requestStopLocked(e)
	stream := e.stream
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		// The recognizer did not settle in time; keep what was finalized.
		e.cancel()
		c.log.WithField("question_index", e.questionIndex).Warn("speech stop timed out before recognizer settled")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == e {
		c.epoch = nil
	}
	e.cancel()
	out := domain.TextOutput(strings.Join(e.parts, " "))
	if e.fatal != nil {
		return out, e.fatal
	}
	return out, nil
}

func (c *SpeechChannel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != nil
}

// Close abandons any capture in progress and releases the microphone.
func (c *SpeechChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	e := c.epoch
	c.epoch = nil
	var stream RecognitionStream
	if e != nil {
		c.requestStopLocked(e)
		stream = e.stream
	}
	opened := c.opened
	c.opened = false
	c.mu.Unlock()

	if e != nil {
		if stream != nil {
			stream.Stop()
		}
		e.cancel()
	}
	if !opened {
		return nil
	}
	if err := c.rec.Release(); err != nil {
		return fmt.Errorf("failed to release microphone: %w", err)
	}
	return nil
}

// Restarts returns how many times the active capture was restarted.
func (c *SpeechChannel) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == nil {
		return 0
	}
	return c.epoch.restarts
}

func (c *SpeechChannel) requestStopLocked(e *speechEpoch) {
	if !e.stopRequested {
		e.stopRequested = true
		close(e.stopCh)
	}
}

// maxRestartFailures bounds consecutive failed restarts before the device
// is treated as lost.
const maxRestartFailures = 3

// run pumps results until a stop is requested, restarting streams that end
// on their own.
func (c *SpeechChannel) run(e *speechEpoch, stream RecognitionStream) {
	defer close(e.done)
	log := c.log.WithField("question_index", e.questionIndex)
	failures := 0

	for {
		if stream != nil {
			c.drain(e, stream)
		}

		c.mu.Lock()
		stopped := e.stopRequested
		c.mu.Unlock()
		if stopped {
			return
		}

		if !c.waitRestart(e) {
			return
		}

		next, err := c.rec.Listen(e.ctx)

		c.mu.Lock()
		if e.stopRequested {
			c.mu.Unlock()
			if next != nil {
				next.Stop()
				c.drain(e, next)
			}
			return
		}
		if err != nil {
			failures++
			if errors.Is(err, domain.ErrDeviceUnavailable) || failures >= maxRestartFailures {
				e.fatal = deviceError("restart listening", err)
				e.stream = nil
				c.mu.Unlock()
				log.WithError(err).Warn("speech device lost during capture")
				c.hooks.failure(e.questionIndex, e.fatal)
				return
			}
			e.stream = nil
			c.mu.Unlock()
			log.WithError(err).Warn("speech restart failed, retrying")
			stream = nil
			continue
		}
		failures = 0
		e.stream = next
		e.restarts++
		c.mu.Unlock()

		log.Debug("speech stream ended spontaneously, restarted")
		c.hooks.restart(e.questionIndex)
		stream = next
	}
}

func (c *SpeechChannel) drain(e *speechEpoch, stream RecognitionStream) {
	for r := range stream.Results() {
		if !r.Final {
			continue
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		c.mu.Lock()
		e.parts = append(e.parts, text)
		c.mu.Unlock()
	}
}

// waitRestart blocks for the restart delay. It returns false if a stop was
// requested meanwhile.
func (c *SpeechChannel) waitRestart(e *speechEpoch) bool {
	if c.cfg.RestartDelay <= 0 {
		return true
	}
	fired := make(chan struct{})
	cancel := c.clock.AfterFunc(c.cfg.RestartDelay, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-e.stopCh:
		cancel()
		return false
	}
}
