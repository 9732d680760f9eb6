// Package metrics exposes Prometheus instruments for the counting pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ayusman/repcounter/internal/rep"
)

// Manager holds the counter metrics registered for one process.
type Manager struct {
	// counters
	CounterSamples  prometheus.Counter
	CounterSkipped  *prometheus.CounterVec
	CounterEvents   *prometheus.CounterVec
	CounterReps     prometheus.Counter
	CounterFrameErr prometheus.Counter

	// gauges
	GaugeRepCount prometheus.Gauge
	GaugePhase    *prometheus.GaugeVec
	GaugeAngle    prometheus.Gauge
	GaugeProgress prometheus.Gauge
	GaugeTracking prometheus.Gauge

	// histograms
	HistInference prometheus.Histogram

	reg       prometheus.Registerer
	namespace string
	subsystem string
}

// NewTestManager registers against a fresh registry.
func NewTestManager() *Manager {
	return NewManager("repcounter", "test", prometheus.NewRegistry())
}

// NewTestManagerAndRegistry also returns the registry so tests can gather from it.
func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repcounter", "test", reg), reg
}

// NewManager creates and registers all metrics on reg under namespace_subsystem.
func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples_total",
			Help:      "Pose samples processed by the engine",
		}),
		CounterSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples_skipped_total",
			Help:      "Pose samples without a usable elbow angle",
		}, []string{"reason"}),
		CounterEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_events_total",
			Help:      "Phase transitions by kind",
		}, []string{"kind"}),
		CounterReps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps_total",
			Help:      "Completed repetitions across all sessions",
		}),
		CounterFrameErr: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frame_errors_total",
			Help:      "Frames that could not be read or run through the detector",
		}),
		GaugeRepCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_reps",
			Help:      "Repetitions in the current session",
		}),
		GaugePhase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase",
			Help:      "1 for the current phase, 0 otherwise",
		}, []string{"phase"}),
		GaugeAngle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "elbow_angle_degrees",
			Help:      "Last defined elbow angle",
		}),
		GaugeProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "descent_progress_percent",
			Help:      "Descent progress of the current repetition",
		}),
		GaugeTracking: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracking",
			Help:      "1 when the last sample had a usable arm",
		}),
		HistInference: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_duration_seconds",
			Help:      "Time spent in pose detection per frame",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2},
		}),
		reg:       reg,
		namespace: namespace,
		subsystem: subsystem,
	}
}

// WatchDropped registers a gauge reporting the session's dropped updates.
func (m *Manager) WatchDropped(s *rep.Session) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_updates",
		Help:      "Updates not delivered because a subscriber was full",
	}, func() float64 {
		return float64(s.Dropped())
	})
}

// ObserveInference records the duration of one detector call.
func (m *Manager) ObserveInference(d time.Duration) {
	m.HistInference.Observe(d.Seconds())
}

// Observe folds one engine update into the instruments.
func (m *Manager) Observe(u rep.Update) {
	if u.Event == nil || u.Event.Kind != rep.EventReset {
		m.CounterSamples.Inc()
	}
	if u.Skip != rep.SkipNone {
		m.CounterSkipped.WithLabelValues(string(u.Skip)).Inc()
	}
	if u.Event != nil {
		m.CounterEvents.WithLabelValues(string(u.Event.Kind)).Inc()
		if u.Event.Kind == rep.EventRepCompleted {
			m.CounterReps.Inc()
		}
	}

	snap := u.Snapshot
	m.GaugeRepCount.Set(float64(snap.RepCount))
	for _, p := range []rep.Phase{rep.PhaseUnknown, rep.PhaseUp, rep.PhaseDown} {
		v := 0.0
		if p == snap.Phase {
			v = 1
		}
		m.GaugePhase.WithLabelValues(string(p)).Set(v)
	}
	if snap.HasAngle {
		m.GaugeAngle.Set(snap.Angle)
	}
	m.GaugeProgress.Set(snap.ProgressPercent)
	if snap.Tracking {
		m.GaugeTracking.Set(1)
	} else {
		m.GaugeTracking.Set(0)
	}
}
