/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-admission/internal/libinfo"
)

const (
	metricsLabelOperation = "operation"
	metricsLabelDecision  = "decision"
)

const (
	metricsValAdmitted  = "admitted"
	metricsValThrottled = "throttled"
	metricsValUnknownOp = "unknown"
)

// MetricsCollector represents collector of metrics for admission decisions.
type MetricsCollector struct {
	Decisions *prometheus.CounterVec
}

// NewMetricsCollector creates a new instance of MetricsCollector.
func NewMetricsCollector(namespace string) *MetricsCollector {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "decisions_total",
		Help:        "Number of admission decisions made by deterministic throttling.",
		ConstLabels: libinfo.AddPrometheusLibVersionLabel(nil),
	}, []string{metricsLabelOperation, metricsLabelDecision})

	return &MetricsCollector{Decisions: decisions}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (mc *MetricsCollector) MustCurryWith(labels prometheus.Labels) *MetricsCollector {
	return &MetricsCollector{Decisions: mc.Decisions.MustCurryWith(labels)}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *MetricsCollector) MustRegister() {
	prometheus.MustRegister(mc.Decisions)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *MetricsCollector) Unregister() {
	prometheus.Unregister(mc.Decisions)
}

// observeDecision does nothing on a nil collector.
func (mc *MetricsCollector) observeDecision(op string, known, throttled bool) {
	if mc == nil {
		return
	}
	mc.Decisions.With(makePromLabels(op, known, throttled)).Inc()
}

func makePromLabels(op string, known, throttled bool) prometheus.Labels {
	if !known {
		op = metricsValUnknownOp
	}
	decision := metricsValAdmitted
	if throttled {
		decision = metricsValThrottled
	}
	return prometheus.Labels{metricsLabelOperation: op, metricsLabelDecision: decision}
}
