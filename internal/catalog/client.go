// Package catalog is the HTTP adapter to the Inventory Service, which owns
// item records and stock counts.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"resty.dev/v3"

	"api_sales/internal/remote"
)

const serviceName = "inventory"

// ErrInvalidCount is returned when asked to set a negative stock count.
var ErrInvalidCount = errors.New("stock count must not be negative")

// Item is a point-in-time snapshot of an inventory item.
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	PricePerItem decimal.Decimal `json:"price_per_item"`
	Description  string          `json:"description"`
	CountInStock int             `json:"count_in_stock"`
}

// MarshalJSON renders price_per_item as a JSON number.
func (it Item) MarshalJSON() ([]byte, error) {
	type alias Item
	return json.Marshal(struct {
		alias
		PricePerItem json.Number `json:"price_per_item"`
	}{
		alias:        alias(it),
		PricePerItem: json.Number(it.PricePerItem.String()),
	})
}

type stockRequest struct {
	CountInStock int `json:"count_in_stock"`
}

// Find returns the first item whose name matches name, ignoring case.
func Find(items []Item, name string) (Item, bool) {
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return Item{}, false
}

// Client calls the Inventory Service.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates an Inventory Service client.
func NewClient(cfg remote.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = remote.DefaultTimeout
	}
	return &Client{
		http:    remote.NewClient(cfg, logger),
		timeout: timeout,
		logger:  logger.Named(serviceName),
	}
}

// List returns every item in the inventory. The service has no lookup by
// name, so callers match over the full list.
func (c *Client) List(ctx context.Context) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var items []Item
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&items).
		Get("/inventory")
	if err := remote.ReadError(serviceName, "list", resp, err); err != nil {
		return nil, err
	}
	return items, nil
}

// SetStock overwrites the stock count of an item.
func (c *Client) SetStock(ctx context.Context, id int64, count int) error {
	if count < 0 {
		return ErrInvalidCount
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetHeader("Content-Type", "application/json").
		SetBody(stockRequest{CountInStock: count}).
		Put("/inventory/{id}")
	if err := remote.MutationError(serviceName, "set_stock", resp, err); err != nil {
		c.logger.Warn("stock update failed",
			zap.Int64("item_id", id),
			zap.Int("count_in_stock", count),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}
