package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "authz",
		Name:      "decisions_total",
		Help:      "Authorization decisions by guarded object, mode and result.",
	}, []string{"object", "mode", "result"})

	decisionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assignment",
		Subsystem: "authz",
		Name:      "decision_seconds",
		Help:      "Casbin evaluation latency.",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}, []string{"object"})
)

func observe(req Request, mode Mode, allowed bool, took time.Duration) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	decisions.WithLabelValues(req.Object, string(mode), result).Inc()
	decisionSeconds.WithLabelValues(req.Object).Observe(took.Seconds())
}
