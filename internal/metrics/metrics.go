package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "souschef_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "souschef_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "souschef_dialogue_turns_total",
			Help: "Total number of dialogue turns, by outcome.",
		},
		[]string{"outcome"},
	)

	RetrievalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "souschef_retrievals_total",
			Help: "Total number of nearest-neighbor searches.",
		},
	)

	GenerationAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "souschef_generation_attempts_total",
			Help: "Total number of generation attempts, including retries.",
		},
	)

	GenerationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "souschef_generation_failures_total",
			Help: "Total number of generation calls that fell back to a canned reply.",
		},
		[]string{"reason"},
	)

	IndexReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "souschef_index_ready",
			Help: "Whether the retrieval index is loaded (1) or not (0).",
		},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "souschef_index_size",
			Help: "Number of vectors in the loaded retrieval index.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsTotal,
		RetrievalsTotal,
		GenerationAttemptsTotal,
		GenerationFailuresTotal,
		IndexReady,
		IndexSize,
	)
}
