package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the event queue.
type Metrics struct {
	Enqueued *prometheus.CounterVec
	Dropped  *prometheus.CounterVec
	Flushed  prometheus.Counter
	Depth    prometheus.Gauge
}

// Drop reasons. Overflow eviction and paused-drop are deliberately distinct
// series: one is a capacity signal, the other an admission policy.
const (
	DropReasonOverflow = "overflow"
	DropReasonPaused   = "paused"
	DropReasonRemoved  = "removed"
	DropReasonCleared  = "cleared"
)

// New registers and returns queue metrics collectors.
func New() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_queue_events_enqueued_total",
			Help: "Total number of events admitted to the queue, labeled by event type",
		}, []string{"type"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_queue_events_dropped_total",
			Help: "Total number of events leaving the queue without delivery, labeled by reason",
		}, []string{"reason"}),
		Flushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_queue_events_flushed_total",
			Help: "Total number of events handed to the dispatcher by Flush",
		}),
		Depth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_queue_depth",
			Help: "Current number of events waiting in the queue",
		}),
	}
}

func (m *Metrics) IncrementEnqueued(eventType string) {
	m.Enqueued.WithLabelValues(eventType).Inc()
}

func (m *Metrics) AddDropped(reason string, n int) {
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) AddFlushed(n int) {
	m.Flushed.Add(float64(n))
}

func (m *Metrics) SetDepth(n int) {
	m.Depth.Set(float64(n))
}
