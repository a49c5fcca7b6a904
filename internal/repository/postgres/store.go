package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ queue.Store = (*Store)(nil)

// DBTX is the common query interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements queue.Store using PostgreSQL.
type Store struct {
	db    DBTX
	ping  func(context.Context) error
	close func()
}

// NewStore creates a Store that owns pool and closes it on Close.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, ping: pool.Ping, close: pool.Close}
}

// NewStoreWithDB creates a Store over an existing connection or transaction.
func NewStoreWithDB(db DBTX) *Store {
	return &Store{db: db, ping: func(context.Context) error { return nil }, close: func() {}}
}

const selectColumns = `local_id, payload, status, created_at, synced_at, remote_id, retry_count, last_error`

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Put upserts t. Writing a record in syncing is a claim: it only succeeds
// while the stored row is still pending or failed, so terminals sharing the
// table never submit the same record twice. A lost claim returns
// ErrTransactionInFlight.
func (s *Store) Put(ctx context.Context, t *queue.Transaction) error {
	if t.Status == queue.StatusSyncing {
		return s.claim(ctx, t)
	}

	status, err := t.Status.MarshalText()
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO queued_transactions (`+selectColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (local_id) DO UPDATE SET
		   payload = EXCLUDED.payload,
		   status = EXCLUDED.status,
		   synced_at = EXCLUDED.synced_at,
		   remote_id = EXCLUDED.remote_id,
		   retry_count = EXCLUDED.retry_count,
		   last_error = EXCLUDED.last_error`,
		t.LocalID, []byte(t.Payload), string(status), t.CreatedAt, t.SyncedAt,
		t.RemoteID, t.RetryCount, t.LastError,
	)
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", t.LocalID, err)
	}
	return nil
}

func (s *Store) claim(ctx context.Context, t *queue.Transaction) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE queued_transactions
		 SET status = 'syncing', retry_count = $2, last_error = $3
		 WHERE local_id = $1 AND status IN ('pending', 'failed')`,
		t.LocalID, t.RetryCount, t.LastError,
	)
	if err != nil {
		return fmt.Errorf("claim transaction %s: %w", t.LocalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim transaction %s: %w", t.LocalID, domainErrors.ErrTransactionInFlight)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, localID string) (*queue.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM queued_transactions WHERE local_id = $1`, localID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainErrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", localID, err)
	}
	return t, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*queue.Transaction, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM queued_transactions ORDER BY created_at, local_id`)
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...queue.Status) ([]*queue.Transaction, error) {
	if len(statuses) == 0 {
		return []*queue.Transaction{}, nil
	}

	names := make([]string, len(statuses))
	for i, st := range statuses {
		text, err := st.MarshalText()
		if err != nil {
			return nil, err
		}
		names[i] = string(text)
	}

	return s.query(ctx,
		`SELECT `+selectColumns+` FROM queued_transactions
		 WHERE status = ANY($1)
		 ORDER BY created_at, local_id`, names)
}

func (s *Store) Delete(ctx context.Context, localID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM queued_transactions WHERE local_id = $1`, localID); err != nil {
		return fmt.Errorf("delete transaction %s: %w", localID, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]*queue.Transaction, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	result := make([]*queue.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTransaction(row scanner) (*queue.Transaction, error) {
	var (
		t         queue.Transaction
		payload   []byte
		status    string
		createdAt time.Time
	)

	if err := row.Scan(&t.LocalID, &payload, &status, &createdAt, &t.SyncedAt, &t.RemoteID, &t.RetryCount, &t.LastError); err != nil {
		return nil, err
	}
	if err := t.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, err
	}
	t.Payload = payload
	t.CreatedAt = createdAt
	return &t, nil
}
