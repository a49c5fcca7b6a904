// Package memory provides a non-persistent queue store. It backs the
// degraded mode used when the durable store cannot be opened, and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
)

var _ queue.Store = (*Store)(nil)

// Store keeps deep copies of every record so callers never share memory
// with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*queue.Transaction
}

func NewStore() *Store {
	return &Store{records: make(map[string]*queue.Transaction)}
}

func (s *Store) Put(ctx context.Context, t *queue.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[t.LocalID] = t.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, localID string) (*queue.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.records[localID]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (s *Store) GetAll(ctx context.Context) ([]*queue.Transaction, error) {
	return s.list(func(*queue.Transaction) bool { return true }), nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...queue.Status) ([]*queue.Transaction, error) {
	want := make(map[queue.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.list(func(t *queue.Transaction) bool { return want[t.Status] }), nil
}

func (s *Store) Delete(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, localID)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) list(keep func(*queue.Transaction) bool) []*queue.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*queue.Transaction, 0, len(s.records))
	for _, t := range s.records {
		if keep(t) {
			result = append(result, t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].LocalID < result[j].LocalID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
