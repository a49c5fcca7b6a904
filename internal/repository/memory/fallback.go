package memory

import (
	"context"
	"errors"
	"sync"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
)

var _ queue.Store = (*Fallback)(nil)

// Fallback serves from a durable primary store until it fails, then copies
// what it can and serves from memory for the rest of the process. The
// switch is one-way and reported once through onDegrade.
type Fallback struct {
	primary   queue.Store
	mem       *Store
	onDegrade func(error)

	mu       sync.RWMutex
	degraded bool
}

func NewFallback(primary queue.Store, onDegrade func(error)) *Fallback {
	if onDegrade == nil {
		onDegrade = func(error) {}
	}
	return &Fallback{primary: primary, mem: NewStore(), onDegrade: onDegrade}
}

// Degraded reports whether the store has switched to memory.
func (f *Fallback) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *Fallback) Put(ctx context.Context, t *queue.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.with(ctx, func(s queue.Store) error { return s.Put(ctx, t) })
}

func (f *Fallback) Get(ctx context.Context, localID string) (*queue.Transaction, error) {
	var out *queue.Transaction
	err := f.with(ctx, func(s queue.Store) error {
		var err error
		out, err = s.Get(ctx, localID)
		return err
	})
	return out, err
}

func (f *Fallback) GetAll(ctx context.Context) ([]*queue.Transaction, error) {
	var out []*queue.Transaction
	err := f.with(ctx, func(s queue.Store) error {
		var err error
		out, err = s.GetAll(ctx)
		return err
	})
	return out, err
}

func (f *Fallback) ListByStatus(ctx context.Context, statuses ...queue.Status) ([]*queue.Transaction, error) {
	var out []*queue.Transaction
	err := f.with(ctx, func(s queue.Store) error {
		var err error
		out, err = s.ListByStatus(ctx, statuses...)
		return err
	})
	return out, err
}

func (f *Fallback) Delete(ctx context.Context, localID string) error {
	return f.with(ctx, func(s queue.Store) error { return s.Delete(ctx, localID) })
}

// Ping checks the primary store. A degraded store always reports
// ErrStoreUnavailable.
func (f *Fallback) Ping(ctx context.Context) error {
	if f.Degraded() {
		return domainErrors.ErrStoreUnavailable
	}
	if p, ok := f.primary.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (f *Fallback) Close() error {
	return f.primary.Close()
}

// with runs op on the active store. A primary failure other than a missing
// record, a lost claim or a canceled context switches to memory and reruns
// op there. Primary operations hold the read lock, so the copy made by
// degrade sees every write that reported success.
func (f *Fallback) with(ctx context.Context, op func(queue.Store) error) error {
	f.mu.RLock()
	if f.degraded {
		f.mu.RUnlock()
		return op(f.mem)
	}
	err := op(f.primary)
	f.mu.RUnlock()

	if err == nil || ctx.Err() != nil ||
		errors.Is(err, domainErrors.ErrTransactionNotFound) ||
		errors.Is(err, domainErrors.ErrTransactionInFlight) {
		return err
	}

	f.degrade(ctx, err)
	return op(f.mem)
}

func (f *Fallback) degrade(ctx context.Context, cause error) {
	f.mu.Lock()
	if f.degraded {
		f.mu.Unlock()
		return
	}
	// Keep whatever the primary can still hand over.
	if existing, err := f.primary.GetAll(ctx); err == nil {
		for _, t := range existing {
			_ = f.mem.Put(ctx, t)
		}
	}
	f.degraded = true
	f.mu.Unlock()

	f.onDegrade(errors.Join(domainErrors.ErrStoreUnavailable, cause))
}
