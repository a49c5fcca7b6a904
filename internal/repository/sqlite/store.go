package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
)

var _ queue.Store = (*Store)(nil)

// Store persists queued transactions in the queued_transactions table.
// Timestamps are stored as unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and migrates it to SchemaVersion.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	db, err := OpenDB(ctx, path, busyTimeout)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `local_id, payload, status, created_at, synced_at, remote_id, retry_count, last_error`

func (s *Store) Put(ctx context.Context, t *queue.Transaction) error {
	status, err := t.Status.MarshalText()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queued_transactions (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			payload = excluded.payload,
			status = excluded.status,
			synced_at = excluded.synced_at,
			remote_id = excluded.remote_id,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error
	`

	_, err = s.db.ExecContext(ctx, query,
		t.LocalID,
		[]byte(t.Payload),
		string(status),
		t.CreatedAt.UnixNano(),
		nullableTime(t.SyncedAt),
		nullableString(t.RemoteID),
		t.RetryCount,
		nullableString(t.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to put transaction %s: %w", t.LocalID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, localID string) (*queue.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM queued_transactions WHERE local_id = ?`

	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainErrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", localID, err)
	}
	return t, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*queue.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM queued_transactions ORDER BY created_at, local_id`
	return s.query(ctx, query)
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...queue.Status) ([]*queue.Transaction, error) {
	if len(statuses) == 0 {
		return []*queue.Transaction{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		text, err := st.MarshalText()
		if err != nil {
			return nil, err
		}
		placeholders[i] = "?"
		args[i] = string(text)
	}

	query := `SELECT ` + selectColumns + ` FROM queued_transactions
		WHERE status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at, local_id`
	return s.query(ctx, query, args...)
}

func (s *Store) Delete(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_transactions WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", localID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*queue.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	result := make([]*queue.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*queue.Transaction, error) {
	var (
		t         queue.Transaction
		payload   []byte
		status    string
		createdAt int64
		syncedAt  sql.NullInt64
		remoteID  sql.NullString
		lastError sql.NullString
	)

	if err := row.Scan(&t.LocalID, &payload, &status, &createdAt, &syncedAt, &remoteID, &t.RetryCount, &lastError); err != nil {
		return nil, err
	}

	if err := t.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, err
	}
	t.Payload = payload
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	if syncedAt.Valid {
		at := time.Unix(0, syncedAt.Int64).UTC()
		t.SyncedAt = &at
	}
	if remoteID.Valid {
		t.RemoteID = &remoteID.String
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	return &t, nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
