package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thereader_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thereader_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ScoringRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thereader_scoring_records_total",
			Help: "Scored chats by outcome",
		},
		[]string{"outcome"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thereader_llm_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thereader_llm_request_duration_seconds",
			Help:    "LLM completion latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"model"},
	)

	RebuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thereader_rebuild_duration_seconds",
			Help:    "Table replacement duration",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"table"},
	)

	DatasetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thereader_dataset_rows",
			Help: "Rows in the latest materialization of a dataset",
		},
		[]string{"dataset"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			HTTPDuration,
			ScoringRecords,
			LLMTokens,
			LLMRequestDuration,
			RebuildDuration,
			DatasetRows,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
