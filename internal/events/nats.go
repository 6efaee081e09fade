package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"api_sales/internal/sales"
)

// DefaultSubjectPrefix is where saga events are published.
const DefaultSubjectPrefix = "sales.events"

// Publisher is the part of *nats.Conn the observer needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials the NATS server at url.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("sales-service"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSObserver publishes each saga event as JSON on <prefix>.<step>. Events
// that need an operator are also published on <prefix>.alerts.
type NATSObserver struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewNATSObserver creates a NATSObserver. An empty prefix means DefaultSubjectPrefix.
func NewNATSObserver(pub Publisher, prefix string, logger *zap.Logger) *NATSObserver {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSObserver{pub: pub, prefix: prefix, logger: logger}
}

// Observe publishes e. Publish failures are logged, never returned to the sale.
func (o *NATSObserver) Observe(_ context.Context, e sales.Event) {
	data, err := json.Marshal(NewMessage(e))
	if err != nil {
		o.logger.Error("failed to encode saga event", zap.String("sale_id", e.SaleID), zap.Error(err))
		return
	}

	subjects := []string{o.prefix + "." + string(e.Step)}
	if e.Alert {
		subjects = append(subjects, o.prefix+".alerts")
	}
	for _, subject := range subjects {
		if err := o.pub.Publish(subject, data); err != nil {
			o.logger.Warn("failed to publish saga event",
				zap.String("subject", subject),
				zap.String("sale_id", e.SaleID),
				zap.Error(err),
			)
		}
	}
}
