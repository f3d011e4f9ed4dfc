package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder counts store operations and tracks their latency.
type PrometheusRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the query collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nasbench_query_total",
			Help: "Total benchmark store operations by result",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nasbench_query_duration_seconds",
			Help:    "Benchmark store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements nasbench.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	result := "ok"
	if !success {
		result = "error"
	}
	r.total.WithLabelValues(operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}
