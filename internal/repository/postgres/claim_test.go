package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execRecorder is a DBTX that records Exec calls and answers with tag.
type execRecorder struct {
	tag  string
	sql  []string
	args [][]any
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = append(e.sql, sql)
	e.args = append(e.args, args)
	return pgconn.NewCommandTag(e.tag), nil
}

func (e *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func (e *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func claimedTransaction(t *testing.T) *queue.Transaction {
	t.Helper()
	tx, err := queue.NewTransaction("txn_1", json.RawMessage(`{"a":1}`), time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, tx.MarkSyncing())
	return tx
}

func TestStore_ClaimIsConditional(t *testing.T) {
	db := &execRecorder{tag: "UPDATE 1"}
	s := NewStoreWithDB(db)

	require.NoError(t, s.Put(context.Background(), claimedTransaction(t)))

	require.Len(t, db.sql, 1)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(db.sql[0]), "UPDATE queued_transactions"))
	assert.Contains(t, db.sql[0], "status IN ('pending', 'failed')")
	assert.Equal(t, "txn_1", db.args[0][0])
}

func TestStore_LostClaimReportsInFlight(t *testing.T) {
	s := NewStoreWithDB(&execRecorder{tag: "UPDATE 0"})

	err := s.Put(context.Background(), claimedTransaction(t))

	assert.ErrorIs(t, err, domainErrors.ErrTransactionInFlight)
}

func TestStore_NonClaimWritesUpsert(t *testing.T) {
	db := &execRecorder{tag: "INSERT 0 1"}
	s := NewStoreWithDB(db)

	tx := claimedTransaction(t)
	require.NoError(t, tx.MarkFailed("HTTP 500"))
	require.NoError(t, s.Put(context.Background(), tx))

	require.Len(t, db.sql, 1)
	assert.Contains(t, db.sql[0], "ON CONFLICT (local_id) DO UPDATE")
}
