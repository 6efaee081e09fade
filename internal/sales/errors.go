package sales

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Failure kinds of a sale. A *SaleError always wraps exactly one of them.
var (
	// ErrValidation: bad input, nothing was called.
	ErrValidation = errors.New("invalid sale request")
	// ErrCustomerNotFound, ErrItemNotFound, ErrInsufficientStock and
	// ErrInsufficientFunds are clean rejections: no remote state was touched.
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds in wallet")
	// ErrStockConflict: another sale of the same item held the item lock for
	// too long. Nothing was touched; the sale may be retried.
	ErrStockConflict = errors.New("item is being sold concurrently")
	// ErrDependencyUnavailable: a dependency could not be reached before any
	// change was applied. The whole sale may be retried.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrDebitFailed: the wallet service refused the debit.
	ErrDebitFailed = errors.New("failed to deduct from customer wallet")
	// ErrSaleFailed: the stock update failed after the debit and the debit
	// was refunded. No net change remains.
	ErrSaleFailed = errors.New("failed to update item in inventory; payment refunded")
	// ErrCompensationFailed: money or stock moved without a matching purchase
	// record. Requires manual reconciliation.
	ErrCompensationFailed = errors.New("sale left inconsistent state")
	// ErrUnknownOutcome: a debit or stock update timed out and may or may not
	// have been applied. Requires reconciliation before any refund.
	ErrUnknownOutcome = errors.New("sale outcome unknown")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrValidation, "validation_error"},
	{ErrCustomerNotFound, "customer_not_found"},
	{ErrItemNotFound, "item_not_found"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrStockConflict, "stock_conflict"},
	{ErrDependencyUnavailable, "dependency_unavailable"},
	{ErrDebitFailed, "debit_failed"},
	{ErrSaleFailed, "sale_failed"},
	{ErrCompensationFailed, "compensation_failed"},
	{ErrUnknownOutcome, "unknown_outcome"},
}

// Code returns a stable machine-readable name for the kind of err, or
// "internal_error" when err is not a sale failure.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}

// Alerting reports whether err needs an operator: state may have diverged.
func Alerting(err error) bool {
	return errors.Is(err, ErrCompensationFailed) || errors.Is(err, ErrUnknownOutcome)
}

// SaleError describes a failed sale in enough detail to reconcile it by hand.
type SaleError struct {
	Kind     error
	Step     Step
	SaleID   string
	Customer string
	Item     string
	Quantity int
	Amount   decimal.Decimal
	// Debited is true when the wallet debit was applied and not refunded.
	Debited bool
	Err     error
}

func (e *SaleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sale %s: %s: %v", e.SaleID, e.Step, e.Kind)
	}
	return fmt.Sprintf("sale %s: %s: %v: %v", e.SaleID, e.Step, e.Kind, e.Err)
}

func (e *SaleError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
