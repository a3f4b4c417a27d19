package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Routing metrics
	RouteDecisions *prometheus.CounterVec
	RouteLatency   prometheus.Histogram

	// Cost metrics
	CostRecorded *prometheus.CounterVec
	BudgetAlerts *prometheus.CounterVec

	// Handoff metrics
	Handoffs *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(sessions *SessionService) *Metrics {
	metrics := &Metrics{
		// Route decisions by source (assignment/rule/default) and outcome
		RouteDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "modelmux_route_decisions_total",
			Help: "Total routing decisions by source and outcome",
		}, []string{"source", "outcome"}), // outcome: "primary" or "fallback"

		// Route resolution latency histogram
		RouteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "modelmux_route_duration_seconds",
			Help:    "Routing decision latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		// Recorded cost in USD by model
		CostRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "modelmux_cost_usd_total",
			Help: "Total recorded cost in USD by model",
		}, []string{"model"}),

		// Budget alerts by type
		BudgetAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "modelmux_budget_alerts_total",
			Help: "Total budget alerts raised by type",
		}, []string{"alert_type"}),

		// Agent handoffs by receiving agent
		Handoffs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "modelmux_handoffs_total",
			Help: "Total agent handoffs by receiving agent",
		}, []string{"to_agent"}),
	}

	// Register a collector that reads the live session count
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "modelmux_sessions_active",
			Help: "Number of sessions with unexpired notes",
		},
		func() float64 {
			if sessions != nil {
				return float64(sessions.SessionCount())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil until InitMetrics)
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRouteDecision records one routing decision
func (m *Metrics) RecordRouteDecision(source string, fallback bool) {
	outcome := "primary"
	if fallback {
		outcome = "fallback"
	}
	m.RouteDecisions.WithLabelValues(source, outcome).Inc()
}

// RecordRouteLatency records routing decision latency
func (m *Metrics) RecordRouteLatency(seconds float64) {
	m.RouteLatency.Observe(seconds)
}

// RecordCost records cost in USD for a model
func (m *Metrics) RecordCost(model string, usd float64) {
	m.CostRecorded.WithLabelValues(model).Add(usd)
}

// RecordBudgetAlert records a raised budget alert
func (m *Metrics) RecordBudgetAlert(alertType string) {
	m.BudgetAlerts.WithLabelValues(alertType).Inc()
}

// RecordHandoff records an agent handoff
func (m *Metrics) RecordHandoff(toAgent string) {
	m.Handoffs.WithLabelValues(toAgent).Inc()
}
