// Package metrics exposes the process's Prometheus collectors, following the
// teacher's pkg/metrics pattern of a package-level custom Registry plus a
// handful of purpose-built collectors (grounded: r3e-network-service_layer's
// pkg/metrics/metrics.go).
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "falprs", Subsystem: "http", Name: "requests_total",
		Help: "Total admin HTTP requests handled.",
	}, []string{"method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "falprs", Subsystem: "http", Name: "request_duration_seconds",
		Help: "Duration of admin HTTP requests.", Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	pipelineIterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "falprs", Subsystem: "pipeline", Name: "iterations_total",
		Help: "Total pipeline iterations by task type and outcome.",
	}, []string{"task_type", "outcome"})

	inferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "falprs", Subsystem: "inference", Name: "call_duration_seconds",
		Help: "Duration of remote model inference calls.", Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	inferenceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "falprs", Subsystem: "inference", Name: "errors_total",
		Help: "Total failed inference calls by model.",
	}, []string{"model"})

	eventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "falprs", Subsystem: "events", Name: "emitted_total",
		Help: "Total recognition events emitted.",
	}, []string{"domain"})

	workflowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "falprs", Subsystem: "scheduler", Name: "active_workflows",
		Help: "Number of stream workflows currently RUNNING.",
	})
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, pipelineIterations, inferenceDuration, inferenceErrors, eventsEmitted, workflowsActive)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one admin HTTP request.
func ObserveHTTP(method, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, status).Inc()
	httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObservePipeline records one pipeline iteration outcome.
func ObservePipeline(taskType, outcome string) {
	pipelineIterations.WithLabelValues(taskType, outcome).Inc()
}

// ObserveEvent records one emitted recognition event.
func ObserveEvent(domain string) {
	eventsEmitted.WithLabelValues(domain).Inc()
}

// SetActiveWorkflows updates the RUNNING-workflow gauge.
func SetActiveWorkflows(n int) {
	workflowsActive.Set(float64(n))
}

// DNNStats tracks per-model rolling call statistics, backing both the
// Prometheus histograms above and the saveDnnStatsData admin method which
// lets external callers merge in client-reported stats (spec §6 FRS methods,
// SPEC_FULL.md §3).
type DNNStats struct {
	mu      sync.Mutex
	byModel map[string]*modelStats
}

type modelStats struct {
	calls, errors int64
	totalLatency  time.Duration
}

func NewDNNStats() *DNNStats {
	return &DNNStats{byModel: map[string]*modelStats{}}
}

// Record logs the outcome of one inference call and feeds the Prometheus
// collectors.
func (d *DNNStats) Record(model string, latency time.Duration, ok bool) {
	inferenceDuration.WithLabelValues(model).Observe(latency.Seconds())
	if !ok {
		inferenceErrors.WithLabelValues(model).Inc()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s, found := d.byModel[model]
	if !found {
		s = &modelStats{}
		d.byModel[model] = s
	}
	s.calls++
	s.totalLatency += latency
	if !ok {
		s.errors++
	}
}

// ModelSnapshot is the report shape for saveDnnStatsData / admin inspection.
type ModelSnapshot struct {
	Model          string  `json:"model"`
	Calls          int64   `json:"calls"`
	Errors         int64   `json:"errors"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
}

func (d *DNNStats) Snapshot() []ModelSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ModelSnapshot, 0, len(d.byModel))
	for model, s := range d.byModel {
		avg := 0.0
		if s.calls > 0 {
			avg = float64(s.totalLatency.Milliseconds()) / float64(s.calls)
		}
		out = append(out, ModelSnapshot{Model: model, Calls: s.calls, Errors: s.errors, AvgLatencyMs: avg})
	}
	return out
}

// Merge folds externally-reported stats (from the saveDnnStatsData admin
// call) into the in-process counters.
func (d *DNNStats) Merge(model string, calls, errors int64, avgLatencyMs float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, found := d.byModel[model]
	if !found {
		s = &modelStats{}
		d.byModel[model] = s
	}
	s.calls += calls
	s.errors += errors
	s.totalLatency += time.Duration(avgLatencyMs*float64(calls)) * time.Millisecond
}
