// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the decoder pipeline.
type Metrics struct {
	// Consumer loop metrics
	EnvelopesProcessed prometheus.Counter
	EnvelopesSkipped   prometheus.Counter
	NativeDeltasTotal  prometheus.Counter
	TokenDeltasTotal   prometheus.Counter
	SwapsDetectedTotal prometheus.Counter
	SwapsEmittedTotal  prometheus.Counter
	PendingRetries     prometheus.Gauge

	// Retry/DLQ metrics
	RetryAttemptsTotal   *prometheus.CounterVec
	DLQRecordsTotal      *prometheus.CounterVec
	DLQPublishErrorsTotal prometheus.Counter

	// Swap detector metrics
	DetectorRejectsTotal  *prometheus.CounterVec
	SwapConfidenceScore   *prometheus.HistogramVec

	// RPC metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec
	RPCEndpointUp   *prometheus.GaugeVec

	// Kafka metrics
	KafkaPublishLatency *prometheus.HistogramVec
	KafkaPublishErrors  *prometheus.CounterVec
	ConsumerLagMessages prometheus.Gauge

	// Sink metrics
	SinkBatchDuration *prometheus.HistogramVec
	SinkBatchErrors   *prometheus.CounterVec
	SinkRowsWritten   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulEnvelope prometheus.Gauge
	UptimeSeconds          prometheus.Counter

	// Streamer metrics
	WSReconnectsTotal prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_decoder"
	}

	return &Metrics{
		EnvelopesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "envelopes_processed_total",
			Help:      "Total number of RawTxEnvelope records processed to a terminal disposition",
		}),
		EnvelopesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "envelopes_skipped_total",
			Help:      "Total number of failed-transaction envelopes skipped (passthrough disabled)",
		}),
		NativeDeltasTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "native_deltas_total",
			Help:      "Total number of native SOL balance deltas emitted",
		}),
		TokenDeltasTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "token_deltas_total",
			Help:      "Total number of SPL token balance deltas emitted",
		}),
		SwapsDetectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "swaps_detected_total",
			Help:      "Total number of swap candidates seen by a venue detector",
		}),
		SwapsEmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "swaps_emitted_total",
			Help:      "Total number of swap events emitted after dedup",
		}),
		PendingRetries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "pending_retries",
			Help:      "Current size of the bounded retry attempts map",
		}),

		RetryAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of hydration retry attempts by error kind",
		}, []string{"kind"}),
		DLQRecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "dlq_records_total",
			Help:      "Total number of DLQ records produced by reason",
		}, []string{"reason"}),
		DLQPublishErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "dlq_publish_errors_total",
			Help:      "Total number of DLQ records that failed to publish",
		}),

		DetectorRejectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swapdetect",
			Name:      "rejects_total",
			Help:      "Total number of swap candidates rejected by a venue detector, by reason",
		}, []string{"venue", "reason"}),
		SwapConfidenceScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swapdetect",
			Name:      "confidence_score",
			Help:      "Confidence score distribution of emitted swap events",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"venue"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solrpc",
			Name:      "call_latency_seconds",
			Help:      "Solana RPC getTransaction call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solrpc",
			Name:      "errors_total",
			Help:      "Total number of RPC call errors by endpoint and class",
		}, []string{"endpoint", "class"}),
		RPCEndpointUp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solrpc",
			Name:      "endpoint_up",
			Help:      "Whether an RPC endpoint is currently outside its cooldown window",
		}, []string{"endpoint"}),

		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kafkaio",
			Name:      "publish_latency_seconds",
			Help:      "Kafka output topic publish latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafkaio",
			Name:      "publish_errors_total",
			Help:      "Total number of Kafka publish errors by topic",
		}, []string{"topic"}),
		ConsumerLagMessages: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kafkaio",
			Name:      "consumer_lag_messages",
			Help:      "Approximate input-topic consumer lag in messages",
		}),

		SinkBatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "batch_duration_seconds",
			Help:      "Sink batch insert duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "table"}),
		SinkBatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "batch_errors_total",
			Help:      "Total number of sink batch insert errors",
		}, []string{"store", "table"}),
		SinkRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "rows_written_total",
			Help:      "Total number of rows written to a sink table",
		}, []string{"store", "table"}),

		LastSuccessfulEnvelope: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_envelope_timestamp",
			Help:      "Unix timestamp of the last envelope processed without a terminal DLQ disposition",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),

		WSReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "ws_reconnects_total",
			Help:      "Total number of successful WebSocket reconnects",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance, registered against the
// global Prometheus registry at package init.
var DefaultMetrics = NewMetrics("")

// RecordRPCCall records one RPC call's latency and, when err is non-nil, an
// error counted by class (see solrpc's sentinel errors).
func RecordRPCCall(endpoint string, seconds float64, errClass string) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(endpoint).Observe(seconds)
	if errClass != "" {
		DefaultMetrics.RPCErrorsTotal.WithLabelValues(endpoint, errClass).Inc()
	}
}

// RecordRetryAttempt increments the retry counter for an error kind.
func RecordRetryAttempt(kind string) {
	DefaultMetrics.RetryAttemptsTotal.WithLabelValues(kind).Inc()
}

// RecordDLQ increments the DLQ counter for a terminal reason.
func RecordDLQ(reason string) {
	DefaultMetrics.DLQRecordsTotal.WithLabelValues(reason).Inc()
}

// RecordDetectorReject increments the detector-reject counter.
func RecordDetectorReject(venue, reason string) {
	DefaultMetrics.DetectorRejectsTotal.WithLabelValues(venue, reason).Inc()
}

// RecordSwapConfidence observes one emitted swap event's confidence score.
func RecordSwapConfidence(venue string, score uint8) {
	DefaultMetrics.SwapConfidenceScore.WithLabelValues(venue).Observe(float64(score))
}

// RecordKafkaPublish records one output-topic publish's latency and, on
// error, increments the topic's error counter.
func RecordKafkaPublish(topic string, seconds float64, err error) {
	DefaultMetrics.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		DefaultMetrics.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordWSReconnect increments the WebSocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnectsTotal.Inc()
}

// RecordSinkBatch records one sink batch insert's duration and, on error,
// increments the store/table error counter; on success it adds rows to the
// rows-written counter.
func RecordSinkBatch(store, table string, seconds float64, rows int, err error) {
	DefaultMetrics.SinkBatchDuration.WithLabelValues(store, table).Observe(seconds)
	if err != nil {
		DefaultMetrics.SinkBatchErrors.WithLabelValues(store, table).Inc()
		return
	}
	DefaultMetrics.SinkRowsWritten.WithLabelValues(store, table).Add(float64(rows))
}
