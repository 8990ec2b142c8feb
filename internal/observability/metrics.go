package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "s7snet"

// Outcome labels for requests and handshakes.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics is the transport's metrics sink. A nil *Metrics records nothing.
type Metrics struct {
	framesIn        prometheus.Counter
	framesOut       prometheus.Counter
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	handshakes      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	evictions       prometheus.Counter
	waiting         prometheus.Gauge
}

// NewMetrics creates the transport metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the stream.",
		}),
		framesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Frames written to the stream.",
		}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "received_bytes_total",
			Help:      "Frame payload bytes received.",
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "sent_bytes_total",
			Help:      "Frame bytes written.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests by outcome.",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from send to response.",
			Buckets:   prometheus.DefBuckets,
		}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "handshakes_total",
			Help:      "Handshakes by outcome.",
		}, []string{"outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by target state.",
		}, []string{"state"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "evictions_total",
			Help:      "Unclaimed responses dropped by ttl or capacity.",
		}),
		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "waiting",
			Help:      "Callers blocked on a response.",
		}),
	}
}

func (m *Metrics) FrameReceived(size int) {
	if m == nil {
		return
	}
	m.framesIn.Inc()
	m.bytesIn.Add(float64(size))
}

func (m *Metrics) FrameSent(size int) {
	if m == nil {
		return
	}
	m.framesOut.Inc()
	m.bytesOut.Add(float64(size))
}

func (m *Metrics) Request(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.requestDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

func (m *Metrics) Waiting(delta int) {
	if m == nil {
		return
	}
	m.waiting.Add(float64(delta))
}
