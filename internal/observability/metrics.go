package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "interview"

// Metrics exposes Prometheus collectors that report session activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive       prometheus.Gauge
	sessionsFinished     *prometheus.CounterVec
	turnsRecorded        *prometheus.CounterVec
	generationFailures   *prometheus.CounterVec
	captureRestarts      prometheus.Counter
	captureFailures      *prometheus.CounterVec
	framesSampled        prometheus.Counter
	framesDropped        prometheus.Counter
	persistenceFailures  prometheus.Counter
	finalizeStageSeconds *prometheus.HistogramVec
}

// MustNewMetrics constructs a Metrics instance registered with reg. Any
// registration error panics, mirroring the promauto helpers.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions currently held in memory.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "finished_total",
			Help:      "Sessions that left memory, by final state.",
		}, []string{"state"}),
		turnsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "turns_recorded_total",
			Help:      "Turns appended to a conversation history.",
		}, []string{"modality"}),
		generationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "generation_failures_total",
			Help:      "Question generator failures, by policy decision.",
		}, []string{"decision"}),
		captureRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "speech_restarts_total",
			Help:      "Speech streams restarted after ending on their own.",
		}),
		captureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "failures_total",
			Help:      "Captures that failed because the device was unavailable.",
		}, []string{"modality"}),
		framesSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_sampled_total",
			Help:      "Video frames sampled from cameras.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because classification failed.",
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "persistence_failures_total",
			Help:      "Report saves that failed.",
		}),
		finalizeStageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "finalize_stage_duration_seconds",
			Help:      "Time spent in each finalization stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.sessionsActive,
		m.sessionsFinished,
		m.turnsRecorded,
		m.generationFailures,
		m.captureRestarts,
		m.captureFailures,
		m.framesSampled,
		m.framesDropped,
		m.persistenceFailures,
		m.finalizeStageSeconds,
	)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionFinished(state string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsFinished.WithLabelValues(state).Inc()
}

func (m *Metrics) TurnRecorded(modality string) {
	if m == nil {
		return
	}
	m.turnsRecorded.WithLabelValues(modality).Inc()
}

func (m *Metrics) GenerationFailed(decision string) {
	if m == nil {
		return
	}
	m.generationFailures.WithLabelValues(decision).Inc()
}

func (m *Metrics) CaptureRestarted() {
	if m == nil {
		return
	}
	m.captureRestarts.Inc()
}

func (m *Metrics) CaptureFailed(modality string) {
	if m == nil {
		return
	}
	m.captureFailures.WithLabelValues(modality).Inc()
}

func (m *Metrics) FrameSampled() {
	if m == nil {
		return
	}
	m.framesSampled.Inc()
}

func (m *Metrics) FramesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.Add(float64(n))
}

func (m *Metrics) PersistenceFailed() {
	if m == nil {
		return
	}
	m.persistenceFailures.Inc()
}

// ObserveStage records the time spent in a finalization stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.finalizeStageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}
