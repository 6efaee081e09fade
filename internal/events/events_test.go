package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"api_sales/internal/sales"
)

var at = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func completeEvent() sales.Event {
	return sales.Event{
		SaleID:     "sale-1",
		Step:       sales.StepComplete,
		Attempt:    1,
		Customer:   "alice",
		Item:       "Widget",
		Quantity:   2,
		Amount:     decimal.RequireFromString("20.50"),
		PurchaseID: 9,
		At:         at,
	}
}

func alertEvent() sales.Event {
	err := &sales.SaleError{Kind: sales.ErrCompensationFailed, Step: sales.StepCompensate, SaleID: "sale-2"}
	return sales.Event{
		SaleID:   "sale-2",
		Step:     sales.StepCompensate,
		Attempt:  1,
		Customer: "bob",
		Item:     "Widget",
		Quantity: 1,
		Amount:   decimal.NewFromInt(10),
		Err:      err,
		Code:     sales.Code(err),
		Alert:    sales.Alerting(err),
		At:       at,
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNewMessage(t *testing.T) {
	data, err := json.Marshal(NewMessage(completeEvent()))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sale_id": "sale-1",
		"step": "complete",
		"attempt": 1,
		"customer_username": "alice",
		"item_name": "Widget",
		"quantity": 2,
		"amount": 20.5,
		"purchase_id": 9,
		"failed": false,
		"alert": false,
		"at": "2026-05-01T09:30:00Z"
	}`, string(data))
}

func TestNATSObserver(t *testing.T) {
	pub := &fakePublisher{}
	obs := NewNATSObserver(pub, "", zaptest.NewLogger(t))

	obs.Observe(context.Background(), completeEvent())
	obs.Observe(context.Background(), alertEvent())

	assert.Equal(t, []string{
		"sales.events.complete",
		"sales.events.compensate",
		"sales.events.alerts",
	}, pub.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.payloads[2], &msg))
	assert.Equal(t, "sale-2", msg.SaleID)
	assert.True(t, msg.Failed)
	assert.True(t, msg.Alert)
	assert.Equal(t, "compensation_failed", msg.Code)
	assert.Contains(t, msg.Error, "sale left inconsistent state")
}

func TestNATSObserver_PublishErrorIsLogged(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	obs := NewNATSObserver(pub, "shop.sales", zap.New(core))

	obs.Observe(context.Background(), completeEvent())

	assert.Equal(t, []string{"shop.sales.complete"}, pub.subjects)
	assert.Equal(t, 1, recorded.FilterMessage("failed to publish saga event").Len())
}

func TestLogObserver(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	obs := NewLogObserver(zap.New(core))

	obs.Observe(context.Background(), completeEvent())
	obs.Observe(context.Background(), alertEvent())

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, int64(9), logs[0].ContextMap()["purchase_id"])
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
	assert.Equal(t, "compensation_failed", logs[1].ContextMap()["code"])
}

func TestMulti(t *testing.T) {
	var got []string
	a := sales.ObserverFunc(func(_ context.Context, e sales.Event) { got = append(got, "a:"+e.SaleID) })
	b := sales.ObserverFunc(func(_ context.Context, e sales.Event) { got = append(got, "b:"+e.SaleID) })

	Multi(a, nil, b).Observe(context.Background(), completeEvent())
	assert.Equal(t, []string{"a:sale-1", "b:sale-1"}, got)
}

func TestMetricsObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	obs, err := NewMetricsObserver(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	obs.Observe(ctx, completeEvent())
	obs.Observe(ctx, completeEvent())
	obs.Observe(ctx, alertEvent())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sums[m.Name] = m
		}
	}

	completed := sums["sales_completed_total"].Data.(metricdata.Sum[int64])
	require.Len(t, completed.DataPoints, 1)
	assert.Equal(t, int64(2), completed.DataPoints[0].Value)

	revenue := sums["sales_revenue_total"].Data.(metricdata.Sum[float64])
	require.Len(t, revenue.DataPoints, 1)
	assert.InDelta(t, 41.0, revenue.DataPoints[0].Value, 1e-9)

	failed := sums["sales_failed_total"].Data.(metricdata.Sum[int64])
	require.Len(t, failed.DataPoints, 1)
	code, ok := failed.DataPoints[0].Attributes.Value(attribute.Key("code"))
	require.True(t, ok)
	assert.Equal(t, "compensation_failed", code.AsString())

	alerts := sums["sales_reconciliation_alerts_total"].Data.(metricdata.Sum[int64])
	require.Len(t, alerts.DataPoints, 1)
	assert.Equal(t, int64(1), alerts.DataPoints[0].Value)

	steps := sums["sales_saga_steps_total"].Data.(metricdata.Sum[int64])
	assert.Len(t, steps.DataPoints, 2, "complete/ok and compensate/error")
}
