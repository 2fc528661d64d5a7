package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
)

type fakeCommander struct {
	mu        sync.Mutex
	connected bool
	sent      []string
}

func (c *fakeCommander) HasActiveConnections(string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCommander) BroadcastJSON(_ string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := v.(BaseMessage); ok {
		c.sent = append(c.sent, b.Type)
	}
	return nil
}

func (c *fakeCommander) count(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if s == msgType {
			n++
		}
	}
	return n
}

func newTestRegistry(cmd *fakeCommander) *Registry {
	r := NewRegistry(cmd, 2, 2, quietLogger())
	r.grace = 20 * time.Millisecond
	return r
}

func TestRemoteDeviceAcquireRequiresConnection(t *testing.T) {
	cmd := &fakeCommander{}
	d := newTestRegistry(cmd).Device("sess_1")

	assert.Error(t, d.Acquire(context.Background()))
	_, err := d.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)

	cmd.connected = true
	require.NoError(t, d.Acquire(context.Background()))
}

func TestRemoteDeviceStreamLifecycle(t *testing.T) {
	ctx := context.Background()
	cmd := &fakeCommander{connected: true}
	d := newTestRegistry(cmd).Device("sess_1")
	d.grace = time.Minute
	require.NoError(t, d.Acquire(ctx))

	stream, err := d.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cmd.count(TypeStartListen))

	d.Recognized(capture.Recognition{Text: "hello", Final: true})
	stream.Stop()
	stream.Stop()
	assert.Equal(t, 1, cmd.count(TypeStopListening))

	d.Recognized(capture.Recognition{Text: "world", Final: true})
	d.SpeechEnded()

	var got []string
	for r := range stream.Results() {
		got = append(got, r.Text)
	}
	assert.Equal(t, []string{"hello", "world"}, got)

	// Results after the stream ended have nowhere to go.
	d.Recognized(capture.Recognition{Text: "late", Final: true})
}

func TestRemoteDeviceStopGraceClosesStream(t *testing.T) {
	ctx := context.Background()
	cmd := &fakeCommander{connected: true}
	d := newTestRegistry(cmd).Device("sess_1")
	require.NoError(t, d.Acquire(ctx))

	stream, err := d.Listen(ctx)
	require.NoError(t, err)
	stream.Stop()

	select {
	case _, ok := <-stream.Results():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after grace period")
	}
}

func TestRemoteDeviceFeedsSpeechChannel(t *testing.T) {
	ctx := context.Background()
	cmd := &fakeCommander{connected: true}
	d := newTestRegistry(cmd).Device("sess_1")

	ch := capture.NewSpeechChannel(d, capture.RealClock{}, capture.SpeechConfig{}, capture.Hooks{}, quietLogger())
	require.NoError(t, ch.Open(ctx))
	require.NoError(t, ch.Start(ctx, 0))
	require.Eventually(t, func() bool { return cmd.count(TypeStartListen) == 1 }, time.Second, 5*time.Millisecond)

	d.Recognized(capture.Recognition{Text: "I like", Final: false})
	d.Recognized(capture.Recognition{Text: "I like Go", Final: true})

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	out, err := ch.Stop(stopCtx)
	require.NoError(t, err)
	assert.Equal(t, "I like Go", out.Transcript)
	require.NoError(t, ch.Close())
}

func TestRemoteDeviceFrames(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	d := newTestRegistry(cmd).Device("sess_1")
	require.NoError(t, d.Acquire(context.Background()))

	_, err := d.Snapshot()
	assert.Error(t, err)
	assert.False(t, d.Enabled())

	d.SetCameraEnabled(true)
	assert.True(t, d.Enabled())

	assert.True(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{1}}))
	assert.True(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{2}}))
	assert.False(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{3}}))

	f, err := d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, f.Data)
	_, err = d.Snapshot()
	assert.ErrorIs(t, err, capture.ErrNoFrame)

	d.SetCameraEnabled(false)
	assert.False(t, d.Enabled())
	_, err = d.Snapshot()
	assert.Error(t, err)
}

func TestRemoteDeviceReleaseDropsPendingFrame(t *testing.T) {
	ctx := context.Background()
	d := newTestRegistry(&fakeCommander{connected: true}).Device("sess_1")
	require.NoError(t, d.Acquire(ctx))
	d.SetCameraEnabled(true)

	assert.True(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{7}}))
	require.NoError(t, d.Release())
	require.NoError(t, d.Acquire(ctx))

	_, err := d.Snapshot()
	assert.ErrorIs(t, err, capture.ErrNoFrame)
}

func TestRemoteDeviceFramesStayInTheirTurn(t *testing.T) {
	ctx := context.Background()
	d := newTestRegistry(&fakeCommander{connected: true}).Device("sess_1")
	clock := capture.NewManualClock(time.Unix(0, 0))
	ch := capture.NewFrameChannel(d, clock, capture.FrameConfig{Interval: 2 * time.Second, Window: 30 * time.Second}, capture.Hooks{}, quietLogger())
	require.NoError(t, ch.Open(ctx))
	d.SetCameraEnabled(true)

	require.NoError(t, ch.Start(ctx, 0))
	assert.True(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{42}}))
	clock.Advance(6 * time.Second)
	out, err := ch.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, out.Frames, 1)
	assert.Equal(t, []byte{42}, out.Frames[0].Data)

	// Uploaded after the first turn stopped, before the next one started.
	assert.True(t, d.PutFrame(domain.Frame{ContentType: "image/jpeg", Data: []byte{43}}))

	require.NoError(t, ch.Start(ctx, 1))
	clock.Advance(4 * time.Second)
	out, err = ch.Stop(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Frames)
	require.NoError(t, ch.Close())
}

func TestRegistryReusesDevices(t *testing.T) {
	r := newTestRegistry(&fakeCommander{})
	assert.Same(t, r.Device("a"), r.Device("a"))
	assert.NotSame(t, r.Device("a"), r.Device("b"))

	first := r.Device("a")
	r.Remove("a")
	assert.NotSame(t, first, r.Device("a"))
}
