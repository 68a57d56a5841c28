package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	natsInboundSMSReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "nats_inbound_messages_received_total",
			Help:      "Total number of NATS messages received for inbound SMS.",
		},
		[]string{"subject_pattern"},
	)

	inboundSMSProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "inbound_sms_processed_total",
			Help:      "Total number of inbound SMS messages handed to moderation.",
		},
		[]string{"provider_name", "status"}, // status: "success", "duplicate", "error_invalid", "error_submit", "error_decode"
	)

	inboundSMSProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "moderation",
			Name:      "inbound_sms_processing_duration_seconds",
			Help:      "Duration of inbound SMS processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)
)
