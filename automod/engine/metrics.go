package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventHandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_event_duration_sec",
	Help:    "Duration of moderation decisions",
	Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
})

var eventHandleCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of message events handled",
})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of message events which failed handling",
}, []string{"reason"})

var decisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_decisions",
	Help: "Moderation decisions, by kind",
}, []string{"kind"})

var heuristicHitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_heuristic_hits",
	Help: "Number of times each heuristic or filter matched a message",
}, []string{"name"})

var escalationCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_escalations",
	Help: "Number of authors escalated to removal",
})

var collaboratorErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_collaborator_errors",
	Help: "Failed calls to the platform or report channel, by operation",
}, []string{"op"})

var reportSentCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_reports_sent",
	Help: "Report chunks sent, by outcome",
}, []string{"status"})

var removalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_removal_duration_sec",
	Help:    "Duration of the full removal and report run for an escalated author",
	Buckets: prometheus.ExponentialBuckets(0.01, 3, 8),
})

var quotaTrippedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_circuit_breaker_trips",
	Help: "Actions skipped because a daily quota was reached",
}, []string{"action"})
