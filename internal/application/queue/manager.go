// Package queue accepts sales into the local queue and exposes the
// operator operations over it (inspection, deletion, cleanup).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxIDAttempts = 5

// CountPublisher receives the unsynced count after every mutation.
type CountPublisher interface {
	SetPendingCount(n int)
}

// Manager creates records and runs the operator-side mutations. The sync
// engine is the only other writer.
type Manager struct {
	store   domainQueue.Store
	status  CountPublisher
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
	newID   func(time.Time) string

	// enqueueMu makes the id collision check and the insert one step.
	enqueueMu sync.Mutex

	obsMu     sync.Mutex
	nextObsID uint64
	observers map[uint64]func(*domainQueue.Transaction)
}

type Option func(*Manager)

func WithStatus(p CountPublisher) Option {
	return func(m *Manager) { m.status = p }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store domainQueue.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		logger:    zerolog.Nop(),
		now:       time.Now,
		newID:     NewLocalID,
		observers: make(map[uint64]func(*domainQueue.Transaction)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewLocalID returns txn_<unix millis>_<8 hex chars>.
func NewLocalID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("txn_%d_%s", now.UnixMilli(), suffix)
}

// Enqueue persists payload as a new pending record and returns its local
// id once the write has completed. Enqueue observers run after the write.
func (m *Manager) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	if len(strings.TrimSpace(string(payload))) == 0 || !json.Valid(payload) {
		return "", fmt.Errorf("%w: payload must be a JSON document", domainErrors.ErrInvalidPayload)
	}

	tx, err := m.insert(ctx, payload)
	if err != nil {
		return "", err
	}

	m.logger.Info().Str("local_id", tx.LocalID).Int("payload_bytes", len(tx.Payload)).Msg("transaction enqueued")
	if m.metrics != nil {
		m.metrics.EnqueuedTotal.Inc()
	}
	m.publishCount(ctx)

	for _, fn := range m.enqueueObservers() {
		fn(tx.Clone())
	}
	return tx.LocalID, nil
}

func (m *Manager) insert(ctx context.Context, payload json.RawMessage) (*domainQueue.Transaction, error) {
	m.enqueueMu.Lock()
	defer m.enqueueMu.Unlock()

	now := m.now()
	id, err := m.uniqueID(ctx, now)
	if err != nil {
		return nil, err
	}

	tx, err := domainQueue.NewTransaction(id, payload, now)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	return tx, nil
}

func (m *Manager) uniqueID(ctx context.Context, now time.Time) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := m.newID(now)
		_, err := m.store.Get(ctx, id)
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check local id: %w", err)
		}
		m.logger.Warn().Str("local_id", id).Msg("local id collision, regenerating")
	}
	return "", fmt.Errorf("could not generate a unique local id after %d attempts", maxIDAttempts)
}

// OnEnqueued registers fn to receive a copy of every newly enqueued record.
// fn runs on the enqueuing goroutine and must not block.
func (m *Manager) OnEnqueued(fn func(*domainQueue.Transaction)) (unsubscribe func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) enqueueObservers() []func(*domainQueue.Transaction) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	out := make([]func(*domainQueue.Transaction), 0, len(m.observers))
	for id := uint64(0); id < m.nextObsID; id++ {
		if fn, ok := m.observers[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (m *Manager) Get(ctx context.Context, localID string) (*domainQueue.Transaction, error) {
	return m.store.Get(ctx, localID)
}

// List returns records in the given statuses, or every record when none
// are given, oldest first.
func (m *Manager) List(ctx context.Context, statuses ...domainQueue.Status) ([]*domainQueue.Transaction, error) {
	if len(statuses) == 0 {
		return m.store.GetAll(ctx)
	}
	return m.store.ListByStatus(ctx, statuses...)
}

// Delete removes a record. Records mid-submission are refused because the
// in-flight request would write them back.
func (m *Manager) Delete(ctx context.Context, localID string) error {
	tx, err := m.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if tx.Status == domainQueue.StatusSyncing {
		return domainErrors.ErrTransactionInFlight
	}
	if err := m.store.Delete(ctx, localID); err != nil {
		return err
	}

	m.logger.Info().Str("local_id", localID).Str("status", tx.Status.String()).Msg("transaction deleted")
	m.publishCount(ctx)
	return nil
}

// Cleanup deletes synced records synced more than olderThanDays ago. No
// other status is ever touched.
func (m *Manager) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, domainErrors.NewValidationError("older_than_days", "must not be negative")
	}

	cutoff := m.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	synced, err := m.store.ListByStatus(ctx, domainQueue.StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("list synced transactions: %w", err)
	}

	deleted := 0
	for _, tx := range synced {
		if tx.Status != domainQueue.StatusSynced || tx.SyncedAt == nil || !tx.SyncedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, tx.LocalID); err != nil {
			return deleted, fmt.Errorf("delete transaction %s: %w", tx.LocalID, err)
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info().Int("deleted", deleted).Int("older_than_days", olderThanDays).Msg("cleaned up synced transactions")
		if m.metrics != nil {
			m.metrics.CleanedUpTotal.Add(float64(deleted))
		}
	}
	return deleted, nil
}

// PendingCount counts records not yet synced, including failed and
// in-flight ones.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	unsynced, err := m.store.ListByStatus(ctx, domainQueue.StatusPending, domainQueue.StatusSyncing, domainQueue.StatusFailed)
	if err != nil {
		return 0, err
	}
	return len(unsynced), nil
}

// RefreshStatus republishes the pending count.
func (m *Manager) RefreshStatus(ctx context.Context) {
	m.publishCount(ctx)
}

func (m *Manager) publishCount(ctx context.Context) {
	n, err := m.PendingCount(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to count pending transactions")
		return
	}
	if m.status != nil {
		m.status.SetPendingCount(n)
	}
	m.metrics.SetQueueDepth(n)
}
