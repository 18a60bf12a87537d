package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes counters about tracked messages and enforcement.
type Metrics struct {
	Tracked      *prometheus.CounterVec
	Actions      *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	TrackedUsers prometheus.Gauge
}

// NewMetrics registers the guard metrics. A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Tracked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamguard",
			Name:      "messages_tracked_total",
			Help:      "Messages processed by the guard, by classification.",
		}, []string{"class"}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamguard",
			Name:      "actions_total",
			Help:      "Moderation actions decided by the guard.",
		}, []string{"action"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamguard",
			Name:      "enforcement_failures_total",
			Help:      "Platform calls that failed during enforcement, by step.",
		}, []string{"step"}),
		TrackedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spamguard",
			Name:      "tracked_users",
			Help:      "Users currently holding at least one bucket.",
		}),
	}
}
