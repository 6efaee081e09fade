package events

import (
	"context"

	"go.uber.org/zap"

	"api_sales/internal/sales"
)

// LogObserver writes every saga step to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("saga")}
}

// Observe logs e. Steps that need an operator are logged at error level.
func (o *LogObserver) Observe(_ context.Context, e sales.Event) {
	fields := []zap.Field{
		zap.String("sale_id", e.SaleID),
		zap.String("step", string(e.Step)),
		zap.Int("attempt", e.Attempt),
		zap.String("customer", e.Customer),
		zap.String("item", e.Item),
		zap.Int("quantity", e.Quantity),
		zap.String("amount", e.Amount.String()),
	}
	if e.PurchaseID != 0 {
		fields = append(fields, zap.Int64("purchase_id", e.PurchaseID))
	}

	switch {
	case e.Alert:
		o.logger.Error("saga step needs reconciliation", append(fields, zap.String("code", e.Code), zap.Error(e.Err))...)
	case e.Failed():
		o.logger.Info("saga step failed", append(fields, zap.String("code", e.Code), zap.Error(e.Err))...)
	default:
		o.logger.Debug("saga step", fields...)
	}
}
