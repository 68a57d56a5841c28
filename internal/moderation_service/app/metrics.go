package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "message_transitions_total",
			Help:      "Total number of applied message status transitions.",
		},
		[]string{"from", "to"},
	)

	operationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "operations_total",
			Help:      "Total number of moderation operations by outcome.",
		},
		[]string{"operation", "result"}, // result: "applied", "noop", "error"
	)

	conflictsAbsorbedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "conflicts_absorbed_total",
			Help:      "Total number of lost compare-and-swap races that were re-evaluated.",
		},
		[]string{"operation"},
	)

	submissionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "submissions_total",
			Help:      "Total number of submitted messages by rule-engine decision.",
		},
		[]string{"decision", "moderation_mode"},
	)

	expiredCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "messages_expired_total",
			Help:      "Total number of played messages persisted as expired.",
		},
		[]string{"path"}, // "read" or "sweep"
	)

	sweepDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "moderation",
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
