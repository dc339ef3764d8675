package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "echochamber"

// Metrics holds all runtime metric instruments.
type Metrics struct {
	CyclesRun     metric.Int64Counter
	CyclesSkipped metric.Int64Counter
	CyclesFailed  metric.Int64Counter
	ToolCalls     metric.Int64Counter
	TokensUsed    metric.Int64Counter
	CycleDuration metric.Float64Histogram
	CycleCost     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CyclesRun, err = meter.Int64Counter("echochamber.cycles.run",
		metric.WithDescription("Number of think cycles run"))
	if err != nil {
		return nil, err
	}

	m.CyclesSkipped, err = meter.Int64Counter("echochamber.cycles.skipped",
		metric.WithDescription("Number of think cycles skipped by the preconditions"))
	if err != nil {
		return nil, err
	}

	m.CyclesFailed, err = meter.Int64Counter("echochamber.cycles.failed",
		metric.WithDescription("Number of think cycles that failed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("echochamber.toolcalls",
		metric.WithDescription("Number of tool calls"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("echochamber.tokens.used",
		metric.WithDescription("Total tokens billed across cycles"))
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram("echochamber.cycle.duration_seconds",
		metric.WithDescription("Think cycle duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CycleCost, err = meter.Float64Histogram("echochamber.cycle.cost_usd",
		metric.WithDescription("Think cycle cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
