package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transfers_completed_total",
			Help:      "Successfully committed transfers",
		},
	)

	TransfersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transfers_failed_total",
			Help:      "Failed transfers by failure code",
		},
		[]string{"code"},
	)

	TransferRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transfer_retries_total",
			Help:      "Transient transfer failures that were retried",
		},
	)

	TransferLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "transfer_duration_seconds",
			Help:      "End-to-end transfer latency including retries",
			Buckets:   prometheus.DefBuckets,
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_outbox",
			Name:      "published_total",
			Help:      "Outbox messages confirmed by the broker",
		},
		[]string{"type"},
	)

	OutboxPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_outbox",
			Name:      "publish_failed_total",
			Help:      "Outbox publish attempts that will be retried",
		},
		[]string{"type"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger_outbox",
			Name:      "batch_pending",
			Help:      "Unprocessed messages seen in the last polling batch",
		},
	)

	InboxMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_inbox",
			Name:      "messages_received_total",
			Help:      "Kafka messages pulled by the consumer",
		},
		[]string{"topic"},
	)

	InboxDuplicatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_inbox",
			Name:      "duplicates_skipped_total",
			Help:      "Redeliveries skipped by the inbox claim",
		},
		[]string{"topic"},
	)

	InboxDLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_inbox",
			Name:      "dlq_total",
			Help:      "Messages sent to DLQ by reason",
		},
		[]string{"topic", "reason"},
	)

	InterestAccrualsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_interest",
			Name:      "accounts_processed_total",
			Help:      "Accounts visited by the interest accrual job",
		},
	)

	InterestAccrualsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_interest",
			Name:      "accounts_skipped_total",
			Help:      "Accounts skipped after a per-account accrual error",
		},
	)
)
