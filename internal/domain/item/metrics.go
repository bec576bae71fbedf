package item

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dsheet.item")

var (
	// registryOps counts registry operations by operation and result
	registryOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsheet_registry_operations_total",
		Help: "Registry operations by operation and result",
	}, []string{"operation", "result"})

	// shiftedItems tracks how many items each shift moved
	shiftedItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dsheet_shift_items",
		Help:    "Number of items moved per shift",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	// shiftDuration tracks park and settle latency
	shiftDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dsheet_shift_duration_seconds",
		Help:    "Shift duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// corruptionDetected counts reads that found duplicate or parked numbers
	corruptionDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsheet_registry_corruption_detected_total",
		Help: "Reads that observed duplicate or unsettled item numbers",
	})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	registryOps.WithLabelValues(op, result).Inc()
}
