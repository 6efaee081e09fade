package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Step names one step of the sale saga.
type Step string

const (
	StepValidate        Step = "validate"
	StepResolveCustomer Step = "resolve_customer"
	StepLockItem        Step = "lock_item"
	StepResolveItem     Step = "resolve_item"
	StepCheckStock      Step = "check_stock"
	StepCheckFunds      Step = "check_funds"
	StepDebit           Step = "debit"
	StepUpdateStock     Step = "update_stock"
	StepCompensate      Step = "compensate"
	StepRecord          Step = "record"
	StepComplete        Step = "complete"
)

// Event is emitted once per saga step.
type Event struct {
	SaleID     string
	Step       Step
	Attempt    int
	Customer   string
	Item       string
	Quantity   int
	Amount     decimal.Decimal
	PurchaseID int64
	// Err is nil when the step succeeded.
	Err error
	// Code is the failure kind (see Code), empty on success.
	Code string
	// Alert marks events an operator must look at.
	Alert bool
	At    time.Time
}

// Failed reports whether the step failed.
func (e Event) Failed() bool { return e.Err != nil }

// Observer receives saga events. Implementations decide where they go and
// must not block for long.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}
