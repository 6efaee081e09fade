package sales

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrEmptyCustomer is returned when trying to store a purchase without a customer.
var ErrEmptyCustomer = errors.New("empty customer username")

// ErrInvalidQuantity is returned when trying to store a purchase with a non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// Storage is the purchase ledger. It is append-only: purchases are never
// updated or deleted.
type Storage interface {
	// Append stores p, assigns its PurchaseID and returns it. IDs increase
	// monotonically.
	Append(ctx context.Context, p *Purchase) (int64, error)
	// ListByCustomer returns the customer's purchases ordered by purchase
	// date, oldest first. It returns an empty slice when there are none.
	ListByCustomer(ctx context.Context, username string) ([]Purchase, error)
	// ListAll returns every purchase ordered by purchase date.
	ListAll(ctx context.Context) ([]Purchase, error)
}

func checkPurchase(p *Purchase) error {
	if p.CustomerUsername == "" {
		return ErrEmptyCustomer
	}
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// LocalStorage is an in-memory Storage.
type LocalStorage struct {
	mu        sync.RWMutex
	purchases []Purchase
	lastID    int64
}

// NewLocalStorage instantiates an empty LocalStorage.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Append stores a copy of p.
func (l *LocalStorage) Append(_ context.Context, p *Purchase) (int64, error) {
	if err := checkPurchase(p); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	p.PurchaseID = l.lastID
	l.purchases = append(l.purchases, *p)
	return p.PurchaseID, nil
}

// ListByCustomer returns the purchases of username.
func (l *LocalStorage) ListByCustomer(_ context.Context, username string) ([]Purchase, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Purchase, 0)
	for _, p := range l.purchases {
		if p.CustomerUsername == username {
			out = append(out, p)
		}
	}
	sortByDate(out)
	return out, nil
}

// ListAll returns every purchase.
func (l *LocalStorage) ListAll(_ context.Context) ([]Purchase, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Purchase, len(l.purchases))
	copy(out, l.purchases)
	sortByDate(out)
	return out, nil
}

func sortByDate(ps []Purchase) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].PurchaseDate.Equal(ps[j].PurchaseDate) {
			return ps[i].PurchaseDate.Before(ps[j].PurchaseDate)
		}
		return ps[i].PurchaseID < ps[j].PurchaseID
	})
}
