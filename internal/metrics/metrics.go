// Package metrics records transfer session metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records transfer metrics.
type Recorder interface {
	// Record is called once per finished session.
	Record(duration time.Duration, bytes int, hasErr bool)
	// SetActive reports the number of running sessions.
	SetActive(n int)
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) Record(duration time.Duration, bytes int, hasErr bool) {}

func (m *dummy) SetActive(n int) {}

type prom struct {
	sessions  prometheus.Counter
	failures  prometheus.Counter
	bytes     prometheus.Counter
	duration  prometheus.Summary
	activeNow prometheus.Gauge
}

// NewPrometheus constructs a new Prometheus metrics recorder.
func NewPrometheus(service string) Recorder {
	return &prom{
		sessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: service + "_sessions_total",
			Help: "The total number of finished transfer sessions",
		}),
		failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: service + "_failures_total",
			Help: "The total number of failed transfer sessions",
		}),
		bytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: service + "_sent_bytes_total",
			Help: "Payload bytes sent by finished sessions",
		}),
		duration: promauto.NewSummary(prometheus.SummaryOpts{
			Name: service + "_session_duration",
			Help: "Session durations in seconds",
		}),
		activeNow: promauto.NewGauge(prometheus.GaugeOpts{
			Name: service + "_sessions_active",
			Help: "The number of running transfer sessions",
		}),
	}
}

func (m *prom) Record(duration time.Duration, bytes int, hasErr bool) {
	m.sessions.Inc()
	m.bytes.Add(float64(bytes))
	m.duration.Observe(duration.Seconds())
	if hasErr {
		m.failures.Inc()
	}
}

func (m *prom) SetActive(n int) {
	m.activeNow.Set(float64(n))
}
