package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the delivery transport.
type Metrics struct {
	Sends       *prometheus.CounterVec
	BytesSent   *prometheus.CounterVec
	BeaconSkips prometheus.Counter
	SendLatency prometheus.Histogram
}

// New registers and returns transport metrics collectors.
func New() *Metrics {
	return &Metrics{
		Sends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_transport_sends_total",
			Help: "Total number of delivery attempts, labeled by mechanism and outcome",
		}, []string{"mechanism", "outcome"}),
		BytesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_transport_bytes_sent_total",
			Help: "Total serialized payload bytes handed to a delivery mechanism",
		}, []string{"mechanism"}),
		BeaconSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_transport_beacon_skips_total",
			Help: "Total number of beacon attempts skipped because the payload exceeded the beacon byte limit",
		}),
		SendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_transport_send_latency_seconds",
			Help:    "Latency of Send calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementSend(mechanism string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.Sends.WithLabelValues(mechanism, outcome).Inc()
}

func (m *Metrics) AddBytesSent(mechanism string, n int) {
	m.BytesSent.WithLabelValues(mechanism).Add(float64(n))
}

func (m *Metrics) IncrementBeaconSkip() {
	m.BeaconSkips.Inc()
}

func (m *Metrics) ObserveSendLatency(seconds float64) {
	m.SendLatency.Observe(seconds)
}
