package monitoring

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fetch metrics
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrule_pages_fetched_total",
			Help: "Total number of pages fetched per operation",
		},
		[]string{"operation", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrule_fetch_duration_seconds",
			Help:    "Duration of page fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Rule metrics
	RuleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrule_rule_errors_total",
			Help: "Total number of recovered rule evaluation errors",
		},
		[]string{"backend"},
	)

	// Operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrule_operations_total",
			Help: "Total number of book operations",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrule_operation_duration_seconds",
			Help:    "Duration of book operations",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	ChaptersParsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookrule_toc_chapters",
			Help:    "Number of chapters in fetched tables of contents",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	ExploreCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrule_explore_cache_total",
			Help: "Explore kinds cache lookups",
		},
		[]string{"result"},
	)
)

// RecordFetch records one page fetch
func RecordFetch(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PagesFetchedTotal.WithLabelValues(operation, status).Inc()
	FetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOperation records a finished book operation
func RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// StartServer starts the Prometheus metrics server
func StartServer(cfg *config.MonitoringConfig, logger *slog.Logger) {
	mux := http.NewServeMux()

	metricsPath := "/metrics"
	if cfg.Path != "" {
		metricsPath = cfg.Path
	}
	mux.Handle(metricsPath, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Prometheus metrics server failed", "error", err)
		}
	}()

	logger.Info("Prometheus metrics server started", "address", addr, "path", metricsPath)
}
