// Package metrics records pipeline events and timings. Recording is
// fire-and-forget: a misbehaving sink never blocks or fails a parse run.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the sink for pipeline events.
type Recorder interface {
	// RecordEvent records a named event with integer and string fields.
	RecordEvent(name string, ints map[string]int64, strs map[string]string)
	// RecordPerformance records a named timing with the same fields.
	RecordPerformance(name string, elapsed time.Duration, ints map[string]int64, strs map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordEvent(string, map[string]int64, map[string]string) {}
func (Nop) RecordPerformance(string, time.Duration, map[string]int64, map[string]string) {
}

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyfoundry_events_total",
		Help: "Total pipeline events by name.",
	}, []string{"event"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyfoundry_stage_seconds",
		Help:    "Time spent in a pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyfoundry_files_total",
		Help: "Files accounted for per stage, by outcome field.",
	}, []string{"stage", "field"})
)

// Prometheus records to process-wide Prometheus collectors.
type Prometheus struct{}

// NewPrometheus returns the Prometheus-backed recorder.
func NewPrometheus() Prometheus { return Prometheus{} }

func (Prometheus) RecordEvent(name string, ints map[string]int64, strs map[string]string) {
	defer swallow(name)
	eventsTotal.WithLabelValues(name).Inc()
	for field, v := range ints {
		if v > 0 {
			filesProcessed.WithLabelValues(name, field).Add(float64(v))
		}
	}
	logStringFields(name, strs)
}

func (Prometheus) RecordPerformance(name string, elapsed time.Duration, ints map[string]int64, strs map[string]string) {
	defer swallow(name)
	stageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	for field, v := range ints {
		if v > 0 {
			filesProcessed.WithLabelValues(name, field).Add(float64(v))
		}
	}
	logStringFields(name, strs)
}

// logStringFields surfaces string fields on the debug channel. Their
// values are unbounded (qualifiers, paths) and must never become
// Prometheus label values.
func logStringFields(name string, strs map[string]string) {
	for field, v := range strs {
		slog.Debug("metrics.field", "event", name, field, v)
	}
}

// swallow keeps sink faults out of the pipeline.
func swallow(name string) {
	if r := recover(); r != nil {
		slog.Debug("metrics.sink.err", "event", name, "err", r)
	}
}
