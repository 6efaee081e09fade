// Package remote holds the HTTP plumbing shared by the adapters to the
// Customer and Inventory services.
package remote

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// DefaultTimeout bounds every remote call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Config describes how to reach one dependency.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Circuit breaker settings. A zero FailureThreshold disables the breaker.
	FailureThreshold uint32
	SuccessThreshold uint32
	BreakerTimeout   time.Duration
}

// NewClient builds a resty client for the given dependency. Retries are left
// disabled: callers decide what is safe to repeat.
func NewClient(cfg Config, logger *zap.Logger) *resty.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())

	if cfg.FailureThreshold > 0 {
		cb := resty.NewCircuitBreaker().
			SetFailureThreshold(cfg.FailureThreshold)
		if cfg.SuccessThreshold > 0 {
			cb.SetSuccessThreshold(cfg.SuccessThreshold)
		}
		if cfg.BreakerTimeout > 0 {
			cb.SetTimeout(cfg.BreakerTimeout)
		}
		c.SetCircuitBreaker(cb)
	}
	return c
}
