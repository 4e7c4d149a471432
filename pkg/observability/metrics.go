// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tool-call streaming pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM-adjacent latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolstream_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolstream_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// ChunkerForcedFlushesTotal counts idle-flush fallbacks in the safe chunker,
	// labeled by stream ID, signaling punctuation-poor model output.
	ChunkerForcedFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_chunker_forced_flushes_total",
			Help: "Safe chunker idle-flush fallbacks",
		},
		[]string{"stream_id"},
	)

	// FormatterRewritesTotal counts inline-call rewrites by outcome.
	FormatterRewritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_formatter_rewrites_total",
			Help: "Inline-call formatter rewrite attempts",
		},
		[]string{"status"},
	)

	// ExecutorDispatchesTotal counts structured-call dispatches by tool and
	// outcome (including the named error kinds).
	ExecutorDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolstream_executor_dispatches_total",
			Help: "Structured-call executor dispatches",
		},
		[]string{"tool_name", "status"},
	)

	// ExecutorDispatchDuration records tool invocation latency in seconds.
	ExecutorDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolstream_executor_dispatch_duration_seconds",
			Help:    "Structured-call executor dispatch duration",
			Buckets: LLMBuckets,
		},
		[]string{"tool_name"},
	)

	// SmootherQueueDepth tracks the live pending-character queue length of
	// the most recently observed smoother instance.
	SmootherQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolstream_smoother_queue_depth",
			Help: "Typed-lag smoother pending queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ToolExecutionsTotal,
		RateLimitRejectedTotal,
		ChunkerForcedFlushesTotal,
		FormatterRewritesTotal,
		ExecutorDispatchesTotal,
		ExecutorDispatchDuration,
		SmootherQueueDepth,
	)
}

// RecordToolExecution increments the tool execution counter for name/status.
func RecordToolExecution(name, status string) {
	ToolExecutionsTotal.WithLabelValues(name, status).Inc()
}

// RecordChunkerForcedFlush increments the forced-flush counter for a stream.
func RecordChunkerForcedFlush(streamID string) {
	ChunkerForcedFlushesTotal.WithLabelValues(streamID).Inc()
}

// RecordFormatterRewrite increments the formatter rewrite counter by outcome.
func RecordFormatterRewrite(status string) {
	FormatterRewritesTotal.WithLabelValues(status).Inc()
}

// RecordExecutorDispatch increments and times an executor dispatch.
func RecordExecutorDispatch(toolName, status string, seconds float64) {
	ExecutorDispatchesTotal.WithLabelValues(toolName, status).Inc()
	ExecutorDispatchDuration.WithLabelValues(toolName).Observe(seconds)
}

// SetSmootherQueueDepth updates the smoother queue depth gauge.
func SetSmootherQueueDepth(n int) {
	SmootherQueueDepth.Set(float64(n))
}
