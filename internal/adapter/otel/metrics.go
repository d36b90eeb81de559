package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "refactorforge"

// Metrics holds all RefactorForge metric instruments.
type Metrics struct {
	ToolCalls     metric.Int64Counter
	PlansBuilt    metric.Int64Counter
	Applies       metric.Int64Counter
	Rollbacks     metric.Int64Counter
	LSPRestarts   metric.Int64Counter
	ApplyDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("refactorforge.toolcalls",
		metric.WithDescription("Number of MCP tool calls"))
	if err != nil {
		return nil, err
	}

	m.PlansBuilt, err = meter.Int64Counter("refactorforge.plans.built",
		metric.WithDescription("Number of plans generated"))
	if err != nil {
		return nil, err
	}

	m.Applies, err = meter.Int64Counter("refactorforge.applies",
		metric.WithDescription("Number of plans applied"))
	if err != nil {
		return nil, err
	}

	m.Rollbacks, err = meter.Int64Counter("refactorforge.rollbacks",
		metric.WithDescription("Number of applies rolled back"))
	if err != nil {
		return nil, err
	}

	m.LSPRestarts, err = meter.Int64Counter("refactorforge.lsp.restarts",
		metric.WithDescription("Number of language server respawns"))
	if err != nil {
		return nil, err
	}

	m.ApplyDuration, err = meter.Float64Histogram("refactorforge.apply.duration_seconds",
		metric.WithDescription("Plan apply duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
