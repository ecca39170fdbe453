package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the scan engine.
type Metrics struct {
	turns              metric.Int64Counter
	invocations        metric.Int64Counter
	rejections         metric.Int64Counter
	runs               metric.Int64Counter
	invocationDuration metric.Float64Histogram
	decisionDuration   metric.Float64Histogram
	activeRuns         metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.turns, err = meter.Int64Counter("recon.turns",
		metric.WithDescription("Decision turns taken"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, err
	}
	if m.invocations, err = meter.Int64Counter("recon.invocations",
		metric.WithDescription("nmap invocations by action and outcome"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		return nil, err
	}
	if m.rejections, err = meter.Int64Counter("recon.rejections",
		metric.WithDescription("Planner replies rejected by the guardrail"),
		metric.WithUnit("{reply}"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("recon.runs",
		metric.WithDescription("Finished runs by terminal status"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}
	if m.invocationDuration, err = meter.Float64Histogram("recon.invocation.duration",
		metric.WithDescription("Wall time of nmap invocations"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.decisionDuration, err = meter.Float64Histogram("recon.decision.duration",
		metric.WithDescription("Time spent waiting for the planner"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.activeRuns, err = meter.Int64UpDownCounter("recon.runs.active",
		metric.WithDescription("Runs in progress"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordTurn counts one decision turn.
func (m *Metrics) RecordTurn(ctx context.Context, goalID string) {
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("goal.id", goalID)))
}

// RecordDecision records how long the planner took and whether it replied.
func (m *Metrics) RecordDecision(ctx context.Context, d time.Duration, ok bool) {
	m.decisionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", ok)))
}

// RecordRejection counts a rejected reply.
func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInvocation counts an nmap invocation and its duration.
func (m *Metrics) RecordInvocation(ctx context.Context, actionID, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("action.id", actionID),
		attribute.String("status", status),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.invocationDuration.Record(ctx, d.Seconds(), attrs)
}

// RunStarted increments the active run gauge.
func (m *Metrics) RunStarted(ctx context.Context) {
	m.activeRuns.Add(ctx, 1)
}

// RunFinished decrements the active run gauge and counts the outcome.
func (m *Metrics) RunFinished(ctx context.Context, status, stopReason string) {
	m.activeRuns.Add(ctx, -1)
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("stop_reason", stopReason),
	))
}
