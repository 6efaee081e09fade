package events

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"api_sales/internal/sales"
)

// MetricsObserver counts saga outcomes.
type MetricsObserver struct {
	steps     metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	alerts    metric.Int64Counter
	revenue   metric.Float64Counter
}

// NewMetricsObserver registers the sales instruments on meter.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	var (
		o   MetricsObserver
		err error
	)
	if o.steps, err = meter.Int64Counter("sales_saga_steps_total",
		metric.WithDescription("Saga steps executed"), metric.WithUnit("{steps}")); err != nil {
		return nil, err
	}
	if o.completed, err = meter.Int64Counter("sales_completed_total",
		metric.WithDescription("Sales recorded"), metric.WithUnit("{sales}")); err != nil {
		return nil, err
	}
	if o.failed, err = meter.Int64Counter("sales_failed_total",
		metric.WithDescription("Sales that ended in an error, by kind"), metric.WithUnit("{sales}")); err != nil {
		return nil, err
	}
	if o.alerts, err = meter.Int64Counter("sales_reconciliation_alerts_total",
		metric.WithDescription("Sales that left state needing manual reconciliation"), metric.WithUnit("{sales}")); err != nil {
		return nil, err
	}
	if o.revenue, err = meter.Float64Counter("sales_revenue_total",
		metric.WithDescription("Total price of recorded sales")); err != nil {
		return nil, err
	}
	return &o, nil
}

// Observe records e.
func (o *MetricsObserver) Observe(ctx context.Context, e sales.Event) {
	outcome := "ok"
	if e.Failed() {
		outcome = "error"
	}
	o.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", string(e.Step)),
		attribute.String("outcome", outcome),
	))

	switch {
	case e.Step == sales.StepComplete:
		o.completed.Add(ctx, 1)
		o.revenue.Add(ctx, e.Amount.InexactFloat64())
	case e.Failed():
		o.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", e.Code)))
		if e.Alert {
			o.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(e.Step))))
		}
	}
}
