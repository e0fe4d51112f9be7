// Package metrics holds the Prometheus collectors for the sign pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/healthbridge/healthbridge/internal/segment"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// Sign event outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeForced   = "forced"
)

var (
	SignEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthbridge_sign_events_total",
			Help: "Sign segments by outcome (accepted, forced, flicker, too_short)",
		},
		[]string{"outcome"},
	)

	Translations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthbridge_translations_total",
			Help: "Translation results by confidence level",
		},
		[]string{"level"},
	)

	TranslationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthbridge_translation_errors_total",
			Help: "Translator calls that failed or timed out",
		},
	)

	TranslationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthbridge_translation_latency_seconds",
			Help:    "Remote translation latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthbridge_confidence_score",
			Help:    "Distribution of confidence scores",
			Buckets: []float64{20, 40, 60, 80, 90, 100},
		},
	)

	SelectedFrames = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthbridge_selected_frames",
			Help:    "Key frames sent per translation",
			Buckets: prometheus.LinearBuckets(2, 2, 10),
		},
	)

	DroppedSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthbridge_dropped_submissions_total",
			Help: "Sign events dropped or replaced while a translation was in flight",
		},
	)

	HookRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthbridge_hook_runs_total",
			Help: "Hook executions by hook and result",
		},
		[]string{"hook", "result"},
	)
)

// ObserveSign counts an accepted sign event.
func ObserveSign(ev segment.Event) {
	if ev.Forced {
		SignEvents.WithLabelValues(OutcomeForced).Inc()
		return
	}
	SignEvents.WithLabelValues(OutcomeAccepted).Inc()
}

// ObserveDiscard counts a rejected sign segment.
func ObserveDiscard(d segment.Discard) {
	SignEvents.WithLabelValues(string(d.Reason)).Inc()
}

// ObserveResult records one translation result.
func ObserveResult(r translate.Result) {
	Translations.WithLabelValues(string(r.Confidence.Level)).Inc()
	ConfidenceScore.Observe(float64(r.Confidence.Score))
	SelectedFrames.Observe(float64(len(r.SelectedIndices)))
	if r.Failed() {
		TranslationErrors.Inc()
		return
	}
	TranslationLatency.Observe(float64(r.LatencyMs) / 1000)
}

// ObserveHook records one hook execution.
func ObserveHook(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	HookRuns.WithLabelValues(name, result).Inc()
}
