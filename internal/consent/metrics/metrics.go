package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	ConsentTransitions *prometheus.CounterVec
	TrackChecks        *prometheus.CounterVec
	PersistenceErrors  prometheus.Counter
	ListenerPanics     prometheus.Counter
	Subscribers        prometheus.Gauge
}

// New registers and returns consent metrics collectors.
func New() *Metrics {
	return &Metrics{
		ConsentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_consent_transitions_total",
			Help: "Total number of consent state transitions, labeled by event kind and resulting status",
		}, []string{"kind", "status"}),
		TrackChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_consent_track_checks_total",
			Help: "Total number of CanTrack evaluations, labeled by category and outcome",
		}, []string{"category", "outcome"}),
		PersistenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_consent_persistence_errors_total",
			Help: "Total number of consent store read/write failures (non-fatal)",
		}),
		ListenerPanics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_consent_listener_panics_total",
			Help: "Total number of panics recovered from consent change listeners",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_consent_subscribers",
			Help: "Current number of consent change subscribers",
		}),
	}
}

func (m *Metrics) IncrementTransition(kind, status string) {
	m.ConsentTransitions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncrementTrackCheck(category string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.TrackChecks.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) IncrementPersistenceError() {
	m.PersistenceErrors.Inc()
}

func (m *Metrics) IncrementListenerPanic() {
	m.ListenerPanics.Inc()
}

func (m *Metrics) SetSubscribers(n float64) {
	m.Subscribers.Set(n)
}
