package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"api_sales/internal/accounts"
	"api_sales/internal/catalog"
	"api_sales/internal/remote"
	"api_sales/internal/telemetry"
)

// AccountLedger is the Customer Service as seen by a sale.
type AccountLedger interface {
	Lookup(ctx context.Context, username string) (*accounts.Customer, error)
	Debit(ctx context.Context, username string, amount decimal.Decimal) error
	Credit(ctx context.Context, username string, amount decimal.Decimal) error
}

// Catalog is the Inventory Service as seen by a sale.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Item, error)
	SetStock(ctx context.Context, id int64, count int) error
}

// Service runs sales against the Customer and Inventory services and keeps
// the purchase ledger.
type Service struct {
	storage  Storage
	accounts AccountLedger
	catalog  Catalog
	logger   *zap.Logger

	locker          ItemLocker
	observer        Observer
	conflictRetries int
	conflictBackoff time.Duration
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker serialises sales per item with l.
func WithLocker(l ItemLocker) Option {
	return func(s *Service) { s.locker = l }
}

// WithObserver sends saga events to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithConflictRetries restarts a sale that hit ErrStockConflict up to n
// times, sleeping backoff between attempts.
func WithConflictRetries(n int, backoff time.Duration) Option {
	return func(s *Service) {
		s.conflictRetries = n
		s.conflictBackoff = backoff
	}
}

// WithClock overrides the clock used for purchase dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(storage Storage, accountLedger AccountLedger, cat Catalog, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	s := &Service{
		storage:  storage,
		accounts: accountLedger,
		catalog:  cat,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSale sells req.Quantity units of req.ItemName to req.CustomerUsername.
//
// The wallet is debited before stock is decremented; if the stock update is
// refused the debit is refunded. Once the debit has been sent the sale runs
// to the end even if ctx is cancelled. Every failure is a *SaleError.
func (s *Service) CreateSale(ctx context.Context, req SaleRequest) (*Receipt, error) {
	req = req.Normalize()
	sg := &saga{
		svc: s,
		id:  uuid.NewString(),
		req: req,
	}
	sg.log = s.logger.With(
		zap.String("sale_id", sg.id),
		zap.String("customer", req.CustomerUsername),
		zap.String("item", req.ItemName),
		zap.Int("quantity", req.Quantity),
	)

	ctx, span := telemetry.StartServiceSpan(ctx, "sale", "create",
		telemetry.WithAttribute(telemetry.AttrSaleID, sg.id),
		telemetry.WithAttribute(telemetry.AttrCustomer, req.CustomerUsername),
		telemetry.WithAttribute(telemetry.AttrItem, req.ItemName),
		telemetry.WithAttribute(telemetry.AttrQuantity, req.Quantity),
	)
	defer span.End()

	receipt, err := sg.run(ctx)
	if err != nil {
		telemetry.SetAttributes(span, telemetry.AttrErrorKind, Code(err))
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.AttrPurchaseID, receipt.PurchaseID)
	telemetry.SetOK(span)
	return receipt, nil
}

// PurchaseHistory returns the purchases of username, oldest first.
func (s *Service) PurchaseHistory(ctx context.Context, username string) ([]Purchase, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	purchases, err := s.storage.ListByCustomer(ctx, username)
	if err != nil {
		s.logger.Error("failed to list purchases", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve purchases: %w", err)
	}
	if purchases == nil {
		purchases = []Purchase{}
	}
	return purchases, nil
}

// ListPurchases returns every recorded purchase.
func (s *Service) ListPurchases(ctx context.Context) ([]Purchase, error) {
	purchases, err := s.storage.ListAll(ctx)
	if err != nil {
		s.logger.Error("failed to list purchases", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve purchases: %w", err)
	}
	if purchases == nil {
		purchases = []Purchase{}
	}
	return purchases, nil
}

// ListGoods returns the items that are in stock.
func (s *Service) ListGoods(ctx context.Context) ([]Good, error) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list inventory", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	goods := make([]Good, 0, len(items))
	for _, it := range items {
		if it.CountInStock > 0 {
			goods = append(goods, Good{Name: it.Name, PricePerItem: it.PricePerItem})
		}
	}
	return goods, nil
}

// GetGood returns the inventory item named name, ignoring case.
func (s *Service) GetGood(ctx context.Context, name string) (*catalog.Item, error) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list inventory", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	item, ok := catalog.Find(items, name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	return &item, nil
}

// saga holds the state of one CreateSale call.
type saga struct {
	svc     *Service
	id      string
	req     SaleRequest
	log     *zap.Logger
	attempt int

	customer *accounts.Customer
	item     catalog.Item
	total    decimal.Decimal
	debited  bool
}

func (sg *saga) run(ctx context.Context) (*Receipt, error) {
	if err := sg.req.Validate(); err != nil {
		return nil, sg.fail(ctx, StepValidate, ErrValidation, err)
	}
	sg.emit(ctx, StepValidate, nil)

	if err := sg.resolveCustomer(ctx); err != nil {
		return nil, err
	}

	for {
		sg.attempt++
		receipt, err := sg.tryOnce(ctx)
		if !errors.Is(err, ErrStockConflict) || sg.attempt > sg.svc.conflictRetries {
			return receipt, err
		}
		sg.log.Info("retrying sale after stock conflict", zap.Int("attempt", sg.attempt))
		select {
		case <-time.After(sg.svc.conflictBackoff):
		case <-ctx.Done():
			return nil, err
		}
	}
}

func (sg *saga) resolveCustomer(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "sale.resolve_customer")
	defer span.End()

	customer, err := sg.svc.accounts.Lookup(ctx, sg.req.CustomerUsername)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepResolveCustomer, ErrCustomerNotFound, err)
	case err != nil:
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepResolveCustomer, ErrDependencyUnavailable, err)
	}
	sg.customer = customer
	sg.emit(ctx, StepResolveCustomer, nil)
	return nil
}

// tryOnce runs everything from the item lookup onwards.
func (sg *saga) tryOnce(ctx context.Context) (*Receipt, error) {
	if l := sg.svc.locker; l != nil {
		unlock, err := l.Lock(ctx, ItemLockKey(sg.req.ItemName))
		switch {
		case errors.Is(err, ErrLockBusy):
			return nil, sg.fail(ctx, StepLockItem, ErrStockConflict, err)
		case err != nil:
			return nil, sg.fail(ctx, StepLockItem, ErrDependencyUnavailable, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				sg.log.Warn("failed to release item lock", zap.Error(err))
			}
		}()
		sg.emit(ctx, StepLockItem, nil)
	}

	if err := sg.resolveItem(ctx); err != nil {
		return nil, err
	}

	sg.total = sg.item.PricePerItem.Mul(decimal.NewFromInt(int64(sg.req.Quantity)))

	if sg.item.CountInStock < sg.req.Quantity {
		return nil, sg.fail(ctx, StepCheckStock, ErrInsufficientStock,
			fmt.Errorf("%d in stock, %d requested", sg.item.CountInStock, sg.req.Quantity))
	}
	sg.emit(ctx, StepCheckStock, nil)

	if sg.customer.Wallet.LessThan(sg.total) {
		return nil, sg.fail(ctx, StepCheckFunds, ErrInsufficientFunds,
			fmt.Errorf("wallet %s, total %s", sg.customer.Wallet, sg.total))
	}
	sg.emit(ctx, StepCheckFunds, nil)

	// Last point at which the caller may still abandon the sale.
	if err := ctx.Err(); err != nil {
		return nil, sg.fail(ctx, StepDebit, ErrDependencyUnavailable, err)
	}
	return sg.commit(context.WithoutCancel(ctx))
}

func (sg *saga) resolveItem(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "sale.resolve_item")
	defer span.End()

	items, err := sg.svc.catalog.List(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepResolveItem, ErrDependencyUnavailable, err)
	}
	item, ok := catalog.Find(items, sg.req.ItemName)
	if !ok {
		return sg.fail(ctx, StepResolveItem, ErrItemNotFound, nil)
	}
	sg.item = item
	sg.emit(ctx, StepResolveItem, nil)
	return nil
}

// commit applies the remote effects and records the purchase. ctx is no
// longer cancellable by the caller.
func (sg *saga) commit(ctx context.Context) (*Receipt, error) {
	if err := sg.debit(ctx); err != nil {
		return nil, err
	}
	if err := sg.updateStock(ctx); err != nil {
		return nil, err
	}

	purchase := &Purchase{
		CustomerUsername: sg.req.CustomerUsername,
		ItemName:         sg.req.ItemName,
		Quantity:         sg.req.Quantity,
		TotalPrice:       sg.total,
		PurchaseDate:     sg.svc.now().UTC(),
	}
	id, err := sg.svc.storage.Append(ctx, purchase)
	if err != nil {
		return nil, sg.fail(ctx, StepRecord, ErrCompensationFailed,
			fmt.Errorf("wallet debited and stock decremented but purchase not recorded: %w", err))
	}
	sg.emitEvent(ctx, Event{Step: StepRecord, PurchaseID: id})

	sg.log.Info("sale completed",
		zap.Int64("purchase_id", id),
		zap.String("total_price", sg.total.String()),
	)
	sg.emitEvent(ctx, Event{Step: StepComplete, PurchaseID: id})
	return &Receipt{PurchaseID: id, SaleID: sg.id, TotalPrice: sg.total}, nil
}

func (sg *saga) debit(ctx context.Context) error {
	// A free item has nothing to debit or refund.
	if sg.total.IsZero() {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "sale.debit",
		telemetry.WithAttribute(telemetry.AttrAmount, sg.total.String()))
	defer span.End()

	err := sg.svc.accounts.Debit(ctx, sg.req.CustomerUsername, sg.total)
	switch {
	case err == nil:
		sg.debited = true
		sg.emit(ctx, StepDebit, nil)
		return nil
	case errors.Is(err, remote.ErrUnknownOutcome):
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepDebit, ErrUnknownOutcome,
			fmt.Errorf("debit may have been applied, not refunding: %w", err))
	case errors.Is(err, remote.ErrUnavailable):
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepDebit, ErrDependencyUnavailable, err)
	default:
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepDebit, ErrDebitFailed, err)
	}
}

func (sg *saga) updateStock(ctx context.Context) error {
	newCount := sg.item.CountInStock - sg.req.Quantity
	ctx, span := telemetry.StartSpan(ctx, "sale.update_stock",
		telemetry.WithAttribute("stock.new_count", newCount))
	defer span.End()

	err := sg.svc.catalog.SetStock(ctx, sg.item.ID, newCount)
	switch {
	case err == nil:
		sg.emit(ctx, StepUpdateStock, nil)
		return nil
	case errors.Is(err, remote.ErrUnknownOutcome):
		// Refunding here could hand out free goods if the update did land.
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepUpdateStock, ErrUnknownOutcome,
			fmt.Errorf("stock update may have been applied, debit kept: %w", err))
	}

	telemetry.RecordError(span, err)
	sg.log.Warn("stock update failed, refunding debit", zap.Error(err))
	return sg.compensate(ctx, err)
}

// compensate refunds the debit after a refused stock update.
func (sg *saga) compensate(ctx context.Context, cause error) error {
	if !sg.debited {
		return sg.fail(ctx, StepCompensate, ErrSaleFailed, cause)
	}
	ctx, span := telemetry.StartSpan(ctx, "sale.compensate",
		telemetry.WithAttribute(telemetry.AttrAmount, sg.total.String()))
	defer span.End()

	if err := sg.svc.accounts.Credit(ctx, sg.req.CustomerUsername, sg.total); err != nil {
		telemetry.RecordError(span, err)
		return sg.fail(ctx, StepCompensate, ErrCompensationFailed,
			fmt.Errorf("refund of %s failed: %w", sg.total, errors.Join(cause, err)))
	}
	sg.debited = false
	return sg.fail(ctx, StepCompensate, ErrSaleFailed, cause)
}

// fail builds the SaleError for step, reports it and returns it.
func (sg *saga) fail(ctx context.Context, step Step, kind, cause error) error {
	serr := &SaleError{
		Kind:     kind,
		Step:     step,
		SaleID:   sg.id,
		Customer: sg.req.CustomerUsername,
		Item:     sg.req.ItemName,
		Quantity: sg.req.Quantity,
		Amount:   sg.total,
		Debited:  sg.debited,
		Err:      cause,
	}

	fields := []zap.Field{
		zap.String("step", string(step)),
		zap.String("code", Code(serr)),
		zap.Bool("debited", sg.debited),
		zap.Error(serr),
	}
	switch {
	case Alerting(serr):
		sg.log.Error("sale needs reconciliation", fields...)
	case errors.Is(kind, ErrSaleFailed) || errors.Is(kind, ErrDependencyUnavailable) || errors.Is(kind, ErrDebitFailed):
		sg.log.Warn("sale failed", fields...)
	default:
		sg.log.Info("sale rejected", fields...)
	}

	sg.emit(ctx, step, serr)
	return serr
}

func (sg *saga) emit(ctx context.Context, step Step, err error) {
	sg.emitEvent(ctx, Event{Step: step, Err: err})
}

func (sg *saga) emitEvent(ctx context.Context, e Event) {
	e.SaleID = sg.id
	e.Attempt = sg.attempt
	e.Customer = sg.req.CustomerUsername
	e.Item = sg.req.ItemName
	e.Quantity = sg.req.Quantity
	e.Amount = sg.total
	e.At = sg.svc.now().UTC()
	if e.Err != nil {
		e.Code = Code(e.Err)
		e.Alert = Alerting(e.Err)
	}
	sg.svc.observer.Observe(ctx, e)
}
