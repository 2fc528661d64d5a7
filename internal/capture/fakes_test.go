package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaot623/mockinterview/internal/domain"
)

type fakeStream struct {
	results chan Recognition
	flush   []Recognition
	once    sync.Once
}

func newFakeStream(flush ...Recognition) *fakeStream {
	return &fakeStream{results: make(chan Recognition, 32), flush: flush}
}

func (s *fakeStream) Results() <-chan Recognition { return s.results }

// Stop delivers the results the recognizer still had buffered, then ends.
func (s *fakeStream) Stop() {
	s.once.Do(func() {
		for _, r := range s.flush {
			s.results <- r
		}
		close(s.results)
	})
}

// end simulates the recognizer ending the stream on its own.
func (s *fakeStream) end() {
	s.once.Do(func() { close(s.results) })
}

func (s *fakeStream) push(text string, final bool) {
	s.results <- Recognition{Text: text, Final: final}
}

type fakeRecognizer struct {
	mu         sync.Mutex
	acquireErr error
	listenErrs []error
	streams    []*fakeStream
	listens    chan *fakeStream
	released   bool
}

func newFakeRecognizer(streams ...*fakeStream) *fakeRecognizer {
	return &fakeRecognizer{streams: streams, listens: make(chan *fakeStream, 8)}
}

func (r *fakeRecognizer) Acquire(context.Context) error { return r.acquireErr }

func (r *fakeRecognizer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	return nil
}

func (r *fakeRecognizer) Listen(context.Context) (RecognitionStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.listenErrs) > 0 {
		err := r.listenErrs[0]
		r.listenErrs = r.listenErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(r.streams) == 0 {
		return nil, errors.New("no stream scripted")
	}
	s := r.streams[0]
	r.streams = r.streams[1:]
	r.listens <- s
	return s, nil
}

func (r *fakeRecognizer) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

type fakeCamera struct {
	mu         sync.Mutex
	enabled    bool
	acquireErr error
	snapErr    error
	snapshots  int
	released   bool
}

func (c *fakeCamera) Acquire(context.Context) error { return c.acquireErr }

func (c *fakeCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

func (c *fakeCamera) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *fakeCamera) setEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = v
}

func (c *fakeCamera) Snapshot() (domain.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapErr != nil {
		return domain.Frame{}, c.snapErr
	}
	c.snapshots++
	return domain.Frame{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, byte(c.snapshots)}}, nil
}

func (c *fakeCamera) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots
}
