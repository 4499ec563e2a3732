// Package metrics registers the process-wide Prometheus collectors: rows
// loaded, fetch retries, and load duration, each labeled by dataset id and
// the duration also by outcome. The orchestrator updates rows loaded and
// load duration; no stage increments FetchRetries.
package metrics

import (
	"net/http"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eurostat_elt_rows_loaded_total",
		Help: "Observations successfully loaded, by dataset id.",
	}, []string{"dataset_id"})

	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eurostat_elt_fetch_retries_total",
		Help: "Fetch attempts beyond the first, by dataset id.",
	}, []string{"dataset_id"})

	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eurostat_elt_load_duration_seconds",
		Help:    "Wall-clock duration of one ingestion run, by dataset id and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset_id", "outcome"})
)

// Serve starts a background HTTP server exposing /metrics on addr. A
// listen failure is logged, not fatal: metrics are an optional ambient
// concern that must never abort an ingestion run.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warnf("metrics: listen on %s: %v", addr, err)
		}
	}()
}
