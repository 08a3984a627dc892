package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges shared by every Session. Bootstrap
// builds one instance, registers it once, and passes it to each Session it
// spawns.
type Metrics struct {
	admitted    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	rescheduled *prometheus.CounterVec
	active      prometheus.Gauge
}

// NewMetrics builds an unregistered Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolerd_tasks_admitted_total",
			Help: "Tasks accepted by admission, by queue.",
		}, []string{"queue"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolerd_tasks_dropped_total",
			Help: "Tasks rejected during admission, by reason.",
		}, []string{"reason"}),
		rescheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolerd_tasks_rescheduled_total",
			Help: "Recurring tasks reinserted after being popped due, by queue.",
		}, []string{"queue"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolerd_sessions_active",
			Help: "Number of currently connected sessions.",
		}),
	}
}

// Register registers every metric with reg. Safe to call once.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.admitted, m.dropped, m.rescheduled, m.active)
}
