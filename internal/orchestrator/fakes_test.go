package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
)

type fakeChannel struct {
	mu       sync.Mutex
	modality domain.Modality
	hooks    capture.Hooks
	openErr  error
	startErr error
	stopErr  error
	outputs  []domain.CapturedOutput
	active   bool
	closed   bool
	starts   []int
}

func (c *fakeChannel) Modality() domain.Modality { return c.modality }

func (c *fakeChannel) Open(context.Context) error { return c.openErr }

func (c *fakeChannel) Start(_ context.Context, idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	if c.active {
		return domain.ErrCaptureActive
	}
	c.active = true
	c.starts = append(c.starts, idx)
	return nil
}

func (c *fakeChannel) Stop(context.Context) (domain.CapturedOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return domain.CapturedOutput{}, domain.ErrCaptureInactive
	}
	c.active = false
	if c.stopErr != nil {
		return domain.CapturedOutput{}, c.stopErr
	}
	if len(c.outputs) == 0 {
		return domain.CapturedOutput{Modality: c.modality}, nil
	}
	out := c.outputs[0]
	c.outputs = c.outputs[1:]
	return out, nil
}

func (c *fakeChannel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.active = false
	return nil
}

type fakePersister struct {
	mu    sync.Mutex
	errs  []error
	calls int
	saved []*domain.SessionReport
}

func (p *fakePersister) SaveSession(_ context.Context, r *domain.SessionReport) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return "", err
		}
	}
	p.saved = append(p.saved, r)
	return r.SessionID, nil
}

type fakeHistory struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func (h *fakeHistory) AppendTurn(_ context.Context, _ string, t domain.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
	return nil
}

type fakeEvents struct {
	mu    sync.Mutex
	types []domain.EventType
}

func (e *fakeEvents) Record(_ context.Context, _ string, t domain.EventType, _ interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, t)
}

func (e *fakeEvents) count(t domain.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, got := range e.types {
		if got == t {
			n++
		}
	}
	return n
}

type classifierFunc func(domain.Frame) (domain.EmotionLabel, error)

func (f classifierFunc) Classify(_ context.Context, frame domain.Frame) (domain.EmotionLabel, error) {
	return f(frame)
}

type snapshotCamera struct {
	mu    sync.Mutex
	shots int
}

func (c *snapshotCamera) Acquire(context.Context) error { return nil }
func (c *snapshotCamera) Release() error                { return nil }
func (c *snapshotCamera) Enabled() bool                 { return true }

func (c *snapshotCamera) Snapshot() (domain.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shots++
	return domain.Frame{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, byte(c.shots)}}, nil
}

var errGenerator = errors.New("generator unavailable")
