package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
)

// DefaultStopGrace bounds how long a stopped stream waits for the browser's
// speech_end before it closes on its own.
const DefaultStopGrace = 2 * time.Second

var (
	errNotConnected = errors.New("no browser connected to session")
)

// commander sends commands to the browser connections of a session.
type commander interface {
	HasActiveConnections(sessionID string) bool
	BroadcastJSON(sessionID string, v interface{}) error
}

// RemoteDevice is the microphone and camera of the browser connected to one
// session. Speech recognition runs in the browser; results arrive through
// the WebSocket and are handed to the active stream.
type RemoteDevice struct {
	sessionID string
	cmd       commander
	grace     time.Duration
	limiter   *rate.Limiter
	log       logrus.FieldLogger

	mu            sync.Mutex
	acquired      bool
	stream        *remoteStream
	cameraEnabled bool
	latest        *domain.Frame
}

var (
	_ capture.Recognizer  = (*RemoteDevice)(nil)
	_ capture.Camera      = (*RemoteDevice)(nil)
	_ capture.FrameBuffer = (*RemoteDevice)(nil)
)

func (d *RemoteDevice) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.cmd.HasActiveConnections(d.sessionID) {
		return errNotConnected
	}
	d.mu.Lock()
	d.acquired = true
	d.mu.Unlock()
	return nil
}

func (d *RemoteDevice) Release() error {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.acquired = false
	d.latest = nil
	d.mu.Unlock()

	if stream != nil {
		stream.end()
	}
	return nil
}

// Listen asks the browser to start recognizing speech.
func (d *RemoteDevice) Listen(ctx context.Context) (capture.RecognitionStream, error) {
	d.mu.Lock()
	if !d.acquired {
		d.mu.Unlock()
		return nil, fmt.Errorf("microphone not acquired: %w", domain.ErrDeviceUnavailable)
	}
	old := d.stream
	d.stream = nil
	d.mu.Unlock()

	if old != nil {
		old.end()
	}
	if !d.cmd.HasActiveConnections(d.sessionID) {
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, errNotConnected)
	}
	s := &remoteStream{device: d, results: make(chan capture.Recognition, 64)}
	d.mu.Lock()
	d.stream = s
	d.mu.Unlock()

	if err := d.cmd.BroadcastJSON(d.sessionID, newBase(TypeStartListen, d.sessionID)); err != nil {
		s.end()
		return nil, fmt.Errorf("failed to send start_listening: %w", err)
	}
	return s, nil
}

func (d *RemoteDevice) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired && d.cameraEnabled
}

// Snapshot takes the most recent frame uploaded by the browser. Each upload
// is returned at most once.
func (d *RemoteDevice) Snapshot() (domain.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		return domain.Frame{}, capture.ErrNoFrame
	}
	f := *d.latest
	d.latest = nil
	return f, nil
}

// DiscardFrames drops an upload that no capture has taken yet.
func (d *RemoteDevice) DiscardFrames() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = nil
}

// Recognized hands a recognition result to the active stream.
func (d *RemoteDevice) Recognized(r capture.Recognition) {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		d.log.Debug("dropping speech result with no active stream")
		return
	}
	stream.deliver(r)
}

// SpeechEnded ends the active stream. The capture channel restarts it if it
// was not asked to stop.
func (d *RemoteDevice) SpeechEnded() {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()
	if stream != nil {
		stream.end()
	}
}

// SetCameraEnabled records whether the browser camera is switched on.
func (d *RemoteDevice) SetCameraEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cameraEnabled = enabled
	if !enabled {
		d.latest = nil
	}
}

// PutFrame stores an uploaded frame. It reports false when the upload was
// over the rate limit and was dropped.
func (d *RemoteDevice) PutFrame(f domain.Frame) bool {
	if !d.limiter.Allow() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = &f
	return true
}

func (d *RemoteDevice) detach(s *remoteStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == s {
		d.stream = nil
	}
}

type remoteStream struct {
	device  *RemoteDevice
	results chan capture.Recognition

	mu       sync.Mutex
	ended    bool
	stopOnce sync.Once
}

func (s *remoteStream) Results() <-chan capture.Recognition { return s.results }

// Stop asks the browser to stop listening. The stream stays open for the
// final results until speech_end arrives or the grace period runs out.
func (s *remoteStream) Stop() {
	s.stopOnce.Do(func() {
		d := s.device
		if err := d.cmd.BroadcastJSON(d.sessionID, newBase(TypeStopListening, d.sessionID)); err != nil {
			d.log.WithError(err).Warn("failed to send stop_listening")
			s.end()
			return
		}
		time.AfterFunc(d.grace, s.end)
	})
}

func (s *remoteStream) deliver(r capture.Recognition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	select {
	case s.results <- r:
	default:
		s.device.log.Warn("speech result buffer full, dropping result")
	}
}

func (s *remoteStream) end() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	close(s.results)
	s.mu.Unlock()
	s.device.detach(s)
}

// Registry holds the remote device of every session.
type Registry struct {
	cmd   commander
	limit rate.Limit
	burst int
	grace time.Duration
	log   logrus.FieldLogger

	mu      sync.Mutex
	devices map[string]*RemoteDevice
}

// NewRegistry creates a registry. framesPerSecond and burst bound how fast a
// browser may upload frames.
func NewRegistry(cmd commander, framesPerSecond float64, burst int, log logrus.FieldLogger) *Registry {
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		cmd:     cmd,
		limit:   rate.Limit(framesPerSecond),
		burst:   burst,
		grace:   DefaultStopGrace,
		log:     log,
		devices: make(map[string]*RemoteDevice),
	}
}

// Device returns the device of a session, creating it on first use.
func (r *Registry) Device(sessionID string) *RemoteDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[sessionID]
	if !ok {
		d = &RemoteDevice{
			sessionID: sessionID,
			cmd:       r.cmd,
			grace:     r.grace,
			limiter:   rate.NewLimiter(r.limit, r.burst),
			log:       r.log.WithField("session_id", sessionID),
		}
		r.devices[sessionID] = d
	}
	return d
}

// Remove forgets the device of a session.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	d := r.devices[sessionID]
	delete(r.devices, sessionID)
	r.mu.Unlock()
	if d != nil {
		_ = d.Release()
	}
}

func (r *Registry) Recognizer(sessionID string) capture.Recognizer { return r.Device(sessionID) }

func (r *Registry) Camera(sessionID string) capture.Camera { return r.Device(sessionID) }
