package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-channel delivery outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the notification collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presensi_notifications_total",
			Help: "Attendance notification attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presensi_notification_duration_seconds",
			Help:    "Time spent delivering one attendance notification.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.duration)
	}
	return m
}

// outcome is "delivered", "failed", or "unverified" when a lenient policy
// reported success over an error.
func outcome(res Result) string {
	switch {
	case !res.OK:
		return "failed"
	case res.Err != nil:
		return "unverified"
	default:
		return "delivered"
	}
}

func (m *Metrics) observe(ch Channel, res Result, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(ch), outcome(res)).Inc()
	m.duration.WithLabelValues(string(ch)).Observe(took.Seconds())
}

func (m *Metrics) skipped(ch Channel) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(ch), "skipped").Inc()
}
