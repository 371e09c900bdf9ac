// Package metrics exposes Prometheus metrics for sync cycles and the icon
// channel. Collectors register with the default registry at init, so the
// dashboard's /metrics endpoint serves them through promhttp.Handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Chunk request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pacelog",
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Records resolved by batch sync, by entity and result (synced, failed, server_won).",
	}, []string{"entity", "result"})

	chunkCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pacelog",
		Subsystem: "sync",
		Name:      "chunk_requests_total",
		Help:      "Batch chunk requests sent, by family and outcome.",
	}, []string{"family", "outcome"})

	cycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pacelog",
		Subsystem: "sync",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of batch sync cycles, by family.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"family"})

	lastCycleGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pacelog",
		Subsystem: "sync",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed cycle, by family.",
	}, []string{"family"})

	iconCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pacelog",
		Subsystem: "sync",
		Name:      "icon_requests_total",
		Help:      "Icon uploads and deletes, by operation and outcome.",
	}, []string{"operation", "outcome"})
)

func init() {
	prometheus.MustRegister(recordsCounter, chunkCounter, cycleDuration, lastCycleGauge, iconCounter)
}

// RecordResolved adds n records of entity to the given result bucket.
func RecordResolved(entity, result string, n int) {
	if n <= 0 {
		return
	}
	recordsCounter.WithLabelValues(entity, result).Add(float64(n))
}

// RecordChunk counts one chunk request.
func RecordChunk(family string, ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	chunkCounter.WithLabelValues(family, outcome).Inc()
}

// RecordCycle observes a finished cycle.
func RecordCycle(family string, d time.Duration, end time.Time) {
	cycleDuration.WithLabelValues(family).Observe(d.Seconds())
	if !end.IsZero() {
		lastCycleGauge.WithLabelValues(family).Set(float64(end.Unix()))
	}
}

// RecordIcon counts one icon request. operation is "upload" or "delete".
func RecordIcon(operation, outcome string) {
	iconCounter.WithLabelValues(operation, outcome).Inc()
}
