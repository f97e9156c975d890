// Package telemetry provides the OpenTelemetry instruments and span helpers
// used across the service layer.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "steward"

// Metrics holds all Steward metric instruments.
type Metrics struct {
	Turns            metric.Int64Counter
	ToolCalls        metric.Int64Counter
	ProposalOutcomes metric.Int64Counter
	BreakerTrips     metric.Int64Counter
	BudgetRejections metric.Int64Counter
	TurnDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Turns, err = meter.Int64Counter("steward.turns",
		metric.WithDescription("Number of conversational turns processed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("steward.toolcalls",
		metric.WithDescription("Number of tool invocations by trust tier"))
	if err != nil {
		return nil, err
	}

	m.ProposalOutcomes, err = meter.Int64Counter("steward.proposals",
		metric.WithDescription("Proposal terminal outcomes by status"))
	if err != nil {
		return nil, err
	}

	m.BreakerTrips, err = meter.Int64Counter("steward.breaker.trips",
		metric.WithDescription("Circuit breaker rejections"))
	if err != nil {
		return nil, err
	}

	m.BudgetRejections, err = meter.Int64Counter("steward.budget.rejections",
		metric.WithDescription("Tool calls rejected by per-tier budget caps"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("steward.turn.duration_seconds",
		metric.WithDescription("Turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
