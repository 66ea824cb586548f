// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "silent"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal *prometheus.CounterVec
	PredictLatency   prometheus.Histogram

	// Sequence admission metrics
	LettersAccepted prometheus.Counter
	LettersRejected *prometheus.CounterVec

	// Capture metrics
	CapturesTotal   *prometheus.CounterVec
	CapturesSkipped prometheus.Counter

	// Batch metrics
	BatchItemsTotal *prometheus.CounterVec
	BatchRuns       prometheus.Counter
}

// Default is the global metrics instance.
var Default = New()

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PredictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Backend prediction calls by outcome (success, no_hand, timeout, network, backend_rejected, protocol)",
		}, []string{"outcome"}),
		PredictLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_latency_seconds",
			Help:      "Backend prediction round-trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		LettersAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "letters_accepted_total",
			Help:      "Observations accepted into the letter sequence",
		}),
		LettersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "letters_rejected_total",
			Help:      "Observations rejected by the admission policy, by reason",
		}, []string{"reason"}),
		CapturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Captures started, by source (manual, timer, auto)",
		}, []string{"source"}),
		CapturesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_skipped_total",
			Help:      "Capture triggers skipped because another capture was in flight",
		}),
		BatchItemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items processed, by final status",
		}, []string{"status"}),
		BatchRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Batch runs started",
		}),
	}
}
