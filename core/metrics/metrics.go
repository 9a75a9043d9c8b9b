// Package metrics exposes Prometheus collectors for visitor tracking.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alshifa"

// Failure reasons.
const (
	ReasonUnavailable = "unavailable"
	ReasonInsert      = "insert"
	ReasonOther       = "other"
)

// Metrics holds the visitor tracking collectors.
type Metrics struct {
	Recorded      prometheus.Counter
	Deduplicated  prometheus.Counter
	Failures      *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	IPLookups     *prometheus.CounterVec
	TrackDuration prometheus.Histogram
	StatsDuration prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Default returns the process-wide collectors, registering them on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Recorded: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "recorded_total",
				Help:      "Visits persisted to the backend",
			}),
			Deduplicated: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "deduplicated_total",
				Help:      "Visits dropped because the visitor was already tracked today",
			}),
			Failures: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "failures_total",
				Help:      "Tracking attempts that failed, by reason",
			}, []string{"reason"}),
			Skipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "skipped_total",
				Help:      "Tracking requests ignored before recording, by reason",
			}, []string{"reason"}),
			IPLookups: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "ip_lookup_total",
				Help:      "Public address lookups, by outcome",
			}, []string{"outcome"}),
			TrackDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "track_duration_seconds",
				Help:      "Duration of tracking attempts",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			}),
			StatsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "visitors",
				Name:      "stats_duration_seconds",
				Help:      "Duration of statistics overview reads",
				Buckets:   prometheus.DefBuckets,
			}),
		}
	})
	return metricsInstance
}

// ObserveResult records one tracking result. It matches the recorder's
// result observer signature.
func (m *Metrics) ObserveResult(res visitors.Result, took time.Duration) {
	m.TrackDuration.Observe(took.Seconds())

	switch res.Status {
	case visitors.StatusRecorded:
		m.Recorded.Inc()
	case visitors.StatusAlreadyTracked:
		m.Deduplicated.Inc()
	default:
		m.Failures.WithLabelValues(FailureReason(res)).Inc()
	}
}

// ObserveLookup records one IP lookup attempt. It matches visitors.LookupObserver.
func (m *Metrics) ObserveLookup(_ string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.IPLookups.WithLabelValues(outcome).Inc()
}

// ObserveSkip counts a request ignored before recording.
func (m *Metrics) ObserveSkip(reason string) {
	m.Skipped.WithLabelValues(reason).Inc()
}

// FailureReason maps a failed result to its metric label.
func FailureReason(res visitors.Result) string {
	switch {
	case res.Status == visitors.StatusUnavailable || errors.Is(res.Err, visitors.ErrBackendUnavailable):
		return ReasonUnavailable
	case res.Status == visitors.StatusFailed && res.Record != nil:
		return ReasonInsert
	}
	return ReasonOther
}
