package metrics

import "github.com/prometheus/client_golang/prometheus"

// Indexing Prometheus metrics.
var (
	DocumentsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bungiesearch",
			Name:      "documents_indexed_total",
			Help:      "Total documents written to the engine by action",
		},
		[]string{"index", "action"}, // action: "index" / "delete"
	)

	SerializeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bungiesearch",
			Name:      "serialize_failures_total",
			Help:      "Total records that failed to serialize during updates",
		},
		[]string{"index", "model"},
	)

	BulkSessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bungiesearch",
			Name:      "bulk_session_duration_seconds",
			Help:      "Duration of bulk ingestion sessions in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"index"},
	)

	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bungiesearch",
			Name:      "engine_requests_total",
			Help:      "Total engine API requests by operation and status",
		},
		[]string{"operation", "status"}, // status: "ok" / "error"
	)
)

var indexingMetricsRegistered bool

// RegisterIndexingMetrics registers Prometheus indexing metrics. Must be
// called once from main.
func RegisterIndexingMetrics() {
	if indexingMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsIndexedTotal)
	prometheus.MustRegister(SerializeFailuresTotal)
	prometheus.MustRegister(BulkSessionDuration)
	prometheus.MustRegister(EngineRequestsTotal)
	indexingMetricsRegistered = true
}
