package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)

	// AICallLatency tracks generative model calls.
	AICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_latency_ms",
			Help:    "Generative AI call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"endpoint", "status"},
	)

	EmailsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_synced_total",
			Help: "Messages returned by inbox sync, by where they came from",
		},
		[]string{"source"}, // cached, fetched
	)

	TriageBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_batches_total",
			Help: "Batch triage attempts by outcome",
		},
		[]string{"status"}, // success, ai_error, parse_error, skipped
	)

	SlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Database queries slower than the configured threshold",
		},
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		},
		[]string{"routing_key", "queue"},
	)

	OutboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox events handled by the dispatcher",
		},
		[]string{"status"}, // sent, failed
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordAICallLatency(endpoint, status string, duration time.Duration) {
	AICallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

func AddEmailsSynced(source string, n int) {
	if n > 0 {
		EmailsSynced.WithLabelValues(source).Add(float64(n))
	}
}

func IncrementTriageBatch(status string) {
	TriageBatches.WithLabelValues(status).Inc()
}

func IncrementSlowQuery() {
	SlowQueries.Inc()
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementOutboxEvent(status string) {
	OutboxEvents.WithLabelValues(status).Inc()
}
