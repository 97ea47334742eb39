package metrics

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoadCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_load_cycle_duration_seconds",
		Help:    "Duration of the load, train and publish cycle.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})
	LoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_load_failures_total",
		Help: "Total number of load cycles that ended in LOAD_FAILED.",
	})
	TrainerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_trainer_duration_seconds",
		Help:    "Duration of each model trainer.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"model"})
	TrainerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_trainer_failures_total",
		Help: "Total number of trainer failures or timeouts.",
	}, []string{"model"})
	CachedModelsUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_cached_models_used_total",
		Help: "Total number of failed trainers replaced by a cached model.",
	}, []string{"model"})
	SnapshotStudents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_snapshot_students",
		Help: "Number of students in the published snapshot.",
	})
	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_snapshot_version",
		Help: "Version of the published snapshot.",
	})
	ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_reports_generated_total",
		Help: "Total number of reports generated, by type.",
	}, []string{"type"})
	ResponseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_response_cache_hits_total",
		Help: "Total number of analysis responses served from redis.",
	})
)

// Serve exposes /metrics and /health on addr until the listener fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
