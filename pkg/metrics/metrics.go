package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	conversionAssistant = "conversion_assistant"

	// Router metrics
	dispatchesTotal = "dispatches_total"

	// Correction loop metrics
	correctionAttemptsTotal = "correction_attempts_total"
	advisoryFallbacksTotal  = "advisory_fallbacks_total"

	// Labels
	dispatchGroupLabel     = "group"
	dispatchOperationLabel = "operation"
	dispatchOutcomeLabel   = "outcome"
	advisoryKindLabel      = "kind"
)

var dispatchTotalLabels = []string{
	dispatchGroupLabel,
	dispatchOperationLabel,
	dispatchOutcomeLabel,
}

var advisoryFallbackLabels = []string{
	advisoryKindLabel,
}

/**
* Metrics definition
**/
var dispatchesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: conversionAssistant,
		Name:      dispatchesTotal,
		Help:      "number of router dispatches by group, operation and outcome",
	},
	dispatchTotalLabels,
)

var correctionAttemptsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: conversionAssistant,
		Name:      correctionAttemptsTotal,
		Help:      "number of correction attempts started",
	},
)

var advisoryFallbacksTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: conversionAssistant,
		Name:      advisoryFallbacksTotal,
		Help:      "number of advisory calls that fell back to the deterministic heuristic",
	},
	advisoryFallbackLabels,
)

func IncDispatch(group, operation, outcome string) {
	labels := prometheus.Labels{
		dispatchGroupLabel:     group,
		dispatchOperationLabel: operation,
		dispatchOutcomeLabel:   outcome,
	}
	dispatchesTotalMetric.With(labels).Inc()
}

func IncCorrectionAttempt() {
	correctionAttemptsTotalMetric.Inc()
}

func IncAdvisoryFallback(kind string) {
	labels := prometheus.Labels{
		advisoryKindLabel: kind,
	}
	advisoryFallbacksTotalMetric.With(labels).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(dispatchesTotalMetric)
	prometheus.MustRegister(correctionAttemptsTotalMetric)
	prometheus.MustRegister(advisoryFallbacksTotalMetric)
}
