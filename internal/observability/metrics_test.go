package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionFinished("COMPLETE")
	m.TurnRecorded("speech")
	m.GenerationFailed("fallback")
	m.FramesDropped(3)
	m.FramesDropped(0)
	m.ObserveStage("transcript", time.Millisecond)

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["interview_sessions_active"])
	assert.Equal(t, 1.0, values["interview_sessions_finished_total"])
	assert.Equal(t, 1.0, values["interview_sequencer_turns_recorded_total"])
	assert.Equal(t, 1.0, values["interview_sequencer_generation_failures_total"])
	assert.Equal(t, 3.0, values["interview_evaluation_frames_dropped_total"])
}

// gather sums every gauge and counter sample by family name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				out[f.GetName()] += m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[f.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionFinished("FAILED")
		m.TurnRecorded("video")
		m.GenerationFailed("retry")
		m.CaptureRestarted()
		m.CaptureFailed("speech")
		m.FrameSampled()
		m.FramesDropped(1)
		m.PersistenceFailed()
		m.ObserveStage("emotion", time.Second)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	log.WithField("session_id", "sess_1").Debug("hello")
	assert.Contains(t, buf.String(), `"session_id":"sess_1"`)

	_, err = NewLogger("loud", "text", nil)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", nil)
	assert.Error(t, err)
}
