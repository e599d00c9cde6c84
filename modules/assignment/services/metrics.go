package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total number of assignment attempts broken down by outcome status and assignment type.",
	}, []string{"status", "type"})

	assignmentLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assignment",
		Subsystem: "engine",
		Name:      "decision_duration_seconds",
		Help:      "Latency of Assign calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	auditWriteAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "audit",
		Name:      "write_attempts_total",
		Help:      "Total number of audit insert attempts broken down by result.",
	}, []string{"result"})

	cursorAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "rotation",
		Name:      "advances_total",
		Help:      "Total number of rotation cursor advances broken down by scope kind.",
	}, []string{"scope"})

	ruleCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "rule_cache",
		Name:      "requests_total",
		Help:      "Total number of rule cache lookups broken down by hit/miss.",
	}, []string{"result"})

	ruleCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "rule_cache",
		Name:      "invalidate_total",
		Help:      "Total number of rule cache invalidations broken down by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of assignment write conflicts broken down by kind.",
	}, []string{"kind"})

	scopeViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignment",
		Subsystem: "scope",
		Name:      "violations_total",
		Help:      "Total number of rejected cross-tenant references broken down by entity.",
	}, []string{"entity"})
)

func recordDecision(status OutcomeStatus, assignmentType string, elapsed time.Duration) {
	if assignmentType == "" {
		assignmentType = "none"
	}
	assignmentDecisions.WithLabelValues(string(status), assignmentType).Inc()
	assignmentLatency.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func recordAuditAttempt(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	auditWriteAttempts.WithLabelValues(result).Inc()
}

func recordCursorAdvance(scopeKind string) {
	cursorAdvances.WithLabelValues(scopeKind).Inc()
}

func recordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ruleCacheRequests.WithLabelValues(result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	ruleCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

func recordScopeViolation(entity string) {
	scopeViolations.WithLabelValues(entity).Inc()
}
