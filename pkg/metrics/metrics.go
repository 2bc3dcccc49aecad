// Package metrics contains the Prometheus collectors of the decoding server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speechstream"

// Server is nil-safe: all the methods are no-op on a nil *Server.
type Server struct {
	Requests       prometheus.Counter
	Failures       *prometheus.CounterVec
	DecodeDuration prometheus.Histogram
	Sessions       prometheus.Gauge
	InFlight       prometheus.Gauge
}

func NewServer(reg prometheus.Registerer) *Server {
	f := promauto.With(reg)
	return &Server{
		Requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_requests_total",
			Help:      "Total number of received decode requests.",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of failed decode requests by reason.",
		}, []string{"reason"}),
		DecodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one audio chunk, including waiting for the session.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of known sessions.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_in_flight",
			Help:      "Number of calls being processed.",
		}),
	}
}

func (m *Server) ObserveRequest() {
	if m == nil {
		return
	}
	m.Requests.Inc()
	m.InFlight.Inc()
}

func (m *Server) ObserveFinished() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

func (m *Server) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(reason).Inc()
}

func (m *Server) ObserveDecode(d time.Duration) {
	if m == nil {
		return
	}
	m.DecodeDuration.Observe(d.Seconds())
}

func (m *Server) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}
