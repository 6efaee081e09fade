package sales

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrLockBusy is returned by an ItemLocker that could not take the lock in time.
var ErrLockBusy = errors.New("item lock busy")

// ItemLocker serialises sales of the same item. Without one, two concurrent
// sales can both pass the stock check against the same snapshot and both
// write back a decremented count, losing one decrement.
type ItemLocker interface {
	// Lock blocks until key is held, the locker's wait time passes
	// (ErrLockBusy) or ctx is done. The returned func releases the lock.
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

// ItemLockKey is the lock key for an item name. Item names match case-insensitively.
func ItemLockKey(itemName string) string {
	return strings.ToLower(strings.TrimSpace(itemName))
}

// MemoryLocker is an ItemLocker for a single orchestrator process. A slot
// lives only while some sale holds or waits on it.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
	wait  time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a MemoryLocker that waits at most wait for a busy item.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{
		slots: make(map[string]*lockSlot),
		wait:  wait,
	}
}

// Lock takes the lock for key.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	slot := l.acquire(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		l.release(key)
		return nil, ErrLockBusy
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-slot.ch
			l.release(key)
		})
		return nil
	}, nil
}

func (l *MemoryLocker) acquire(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
