package controller

import "sync/atomic"

// Metrics are lightweight counters for the controller's own operation — not
// instrumentation for the workflows it runs. They are intentionally not
// wired to a Prometheus exporter: the ambient telemetry package already owns
// that surface, and Snapshot is rendered as JSON by
// server.ControllerMetricsHandler instead.
type Metrics struct {
	InFlight         atomic.Int64
	OrphanRecoveries atomic.Int64
	GenerateRounds   atomic.Int64
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot renders the current counter values by name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"in_flight":         m.InFlight.Load(),
		"orphan_recoveries": m.OrphanRecoveries.Load(),
		"generate_rounds":   m.GenerateRounds.Load(),
	}
}
