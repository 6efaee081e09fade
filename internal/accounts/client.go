// Package accounts is the HTTP adapter to the Customer Service, which owns
// customer records and wallet balances.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"resty.dev/v3"

	"api_sales/internal/remote"
)

const serviceName = "customers"

// ErrInvalidAmount is returned for debit or credit amounts that are not positive.
var ErrInvalidAmount = errors.New("amount must be a positive number")

// Customer is a point-in-time snapshot of a customer account.
type Customer struct {
	ID       int64           `json:"id"`
	FullName string          `json:"full_name"`
	Username string          `json:"username"`
	Wallet   decimal.Decimal `json:"wallet"`
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

// Client calls the Customer Service.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a Customer Service client.
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

// Lookup fetches a customer by username.
func (c *Client) Lookup(ctx context.Context, username string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Customer
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("username", username).
		SetResult(&out).
		Get("/customers/{username}")
	if err := remote.ReadError(serviceName, "lookup", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Debit deducts amount from the customer's wallet.
func (c *Client) Debit(ctx context.Context, username string, amount decimal.Decimal) error {
	return c.adjust(ctx, "deduct", username, amount)
}

// Credit adds amount to the customer's wallet.
func (c *Client) Credit(ctx context.Context, username string, amount decimal.Decimal) error {
	return c.adjust(ctx, "charge", username, amount)
}

func (c *Client) adjust(ctx context.Context, action, username string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("username", username).
		SetHeader("Content-Type", "application/json").
		SetBody(amountRequest{Amount: amount.InexactFloat64()}).
		Post("/customers/{username}/" + action)
	if err := remote.MutationError(serviceName, action, resp, err); err != nil {
		c.logger.Warn("wallet adjustment failed",
			zap.String("action", action),
			zap.String("username", username),
			zap.String("amount", amount.String()),
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
