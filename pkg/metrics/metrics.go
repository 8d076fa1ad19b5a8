package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 意向写入计数
	IntentionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentions_recorded_total",
			Help: "Total number of intentions recorded",
		},
		[]string{"type"}, // investor / donor / advertiser
	)

	// 统计计数器 CAS 尝试次数
	StatsCASAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cas_attempts_total",
			Help: "Total number of project stats compare-and-swap attempts",
		},
	)

	// 统计计数器 CAS 冲突次数
	StatsCASConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cas_conflicts_total",
			Help: "Total number of project stats compare-and-swap version conflicts",
		},
	)

	// 统计计数器重试耗尽次数
	StatsCASExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cas_exhausted_total",
			Help: "Total number of stats adjustments that exhausted their retry budget",
		},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of slow database queries",
		},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementIntentionsRecorded 增加意向写入计数
func IncrementIntentionsRecorded(intentionType string) {
	IntentionsRecorded.WithLabelValues(intentionType).Inc()
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
