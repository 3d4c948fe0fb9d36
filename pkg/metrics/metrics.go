package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"command"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 项目状态流转
	ProjectTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_status_transition_total",
			Help: "Project status transitions by outcome",
		},
		[]string{"from", "to", "result"}, // result: applied, rejected
	)

	// 里程碑分配
	MilestoneAllocationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_allocation_total",
			Help: "Milestone creation attempts by outcome",
		},
		[]string{"result"}, // result: created, budget_exceeded, denied, error
	)

	// 认捐事件
	PledgeEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_event_total",
			Help: "Pledge ledger events by target status and outcome",
		},
		[]string{"status", "result"},
	)

	// 并发冲突重试
	ConcurrencyRetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concurrency_retry_total",
			Help: "Retries caused by transaction serialization conflicts",
		},
		[]string{"operation"},
	)

	// 资金汇总耗时（秒）
	FundingSummaryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funding_summary_duration_seconds",
			Help:    "Time spent computing funding summaries",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"mode"}, // mode: single, batch
	)

	// 推荐列表缓存
	FeaturedCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featured_cache_total",
			Help: "Featured ranking cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(command string) {
	SlowQueryCount.WithLabelValues(command).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementProjectTransition(from, to, result string) {
	ProjectTransitionCount.WithLabelValues(from, to, result).Inc()
}

func IncrementMilestoneAllocation(result string) {
	MilestoneAllocationCount.WithLabelValues(result).Inc()
}

func IncrementPledgeEvent(status, result string) {
	PledgeEventCount.WithLabelValues(status, result).Inc()
}

func IncrementConcurrencyRetry(operation string) {
	ConcurrencyRetryCount.WithLabelValues(operation).Inc()
}

// RecordFundingSummaryDuration 记录资金汇总耗时
func RecordFundingSummaryDuration(mode string, duration time.Duration) {
	FundingSummaryDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func IncrementFeaturedCache(result string) {
	FeaturedCacheCount.WithLabelValues(result).Inc()
}
