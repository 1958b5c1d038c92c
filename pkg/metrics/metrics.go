// Package metrics exposes Prometheus instrumentation for the statusflow
// pipeline. Metrics cover the three stages of the relay: records read
// from the source stream, transform outcomes, and batches delivered to
// the sink stream.
//
// All metrics self-register through promauto and are served from the
// default registry.
//
// Example:
//
//	metrics.RecordsConsumed.WithLabelValues("orders").Inc()
//	timer := metrics.NewTimer()
//	flush(batch)
//	metrics.FlushLatency.WithLabelValues("results").Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsConsumed counts records read from the source stream.
	// Labels: stream.
	RecordsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusflow_records_consumed_total",
			Help: "Total number of records read from the source stream",
		},
		[]string{"stream"},
	)

	// RecordsPublished counts records successfully written to the sink
	// stream. Labels: stream.
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusflow_records_published_total",
			Help: "Total number of records delivered to the sink stream",
		},
		[]string{"stream"},
	)

	// TransformFailures counts records dropped because they could not
	// be transformed. Labels: reason.
	TransformFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusflow_transform_failures_total",
			Help: "Total number of records dropped by the transform stage",
		},
		[]string{"reason"},
	)

	// RecordsDropped counts records discarded before delivery for
	// reasons other than transform failure, such as exceeding the
	// per-record size limit. Labels: reason.
	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusflow_records_dropped_total",
			Help: "Total number of records discarded before delivery",
		},
		[]string{"reason"},
	)

	// DeliveryRetries counts sink batch entries requeued after a
	// retryable per-record failure. Labels: code.
	DeliveryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusflow_delivery_retries_total",
			Help: "Total number of sink entries requeued for retry",
		},
		[]string{"code"},
	)

	// FlushLatency tracks sink batch flush duration in seconds.
	// Labels: stream.
	FlushLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "statusflow_flush_latency_seconds",
			Help: "Sink batch flush latency in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.5,   // 500ms
				1,     // 1s
				5,     // 5s
			},
		},
		[]string{"stream"},
	)

	// ActiveShards tracks the number of shard readers currently
	// running. Labels: stream, mode.
	ActiveShards = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statusflow_active_shards",
			Help: "Number of shard readers currently running",
		},
		[]string{"stream", "mode"},
	)
)

// Timer measures the duration of a single operation. It captures the
// start time on creation and the elapsed time on Stop.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
