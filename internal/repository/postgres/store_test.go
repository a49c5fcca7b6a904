package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to the database named by POSQUEUE_TEST_DATABASE_HOST
// and skips when it is not set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	host := os.Getenv("POSQUEUE_TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("POSQUEUE_TEST_DATABASE_HOST not set")
	}

	cfg := &config.DatabaseConfig{
		Host:           host,
		Port:           5432,
		User:           "posqueue",
		Password:       os.Getenv("POSQUEUE_TEST_DATABASE_PASSWORD"),
		Database:       "posqueue_test",
		MaxConnections: 2,
		MinConnections: 1,
		SSLMode:        "disable",
	}
	require.NoError(t, Migrate(cfg.DatabaseURL()))

	ctx := context.Background()
	pool, err := NewPool(ctx, cfg)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE queued_transactions`)
	require.NoError(t, err)

	s := NewStore(pool)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	payload := `{ "b":2, "a":1 }`
	tx, err := queue.NewTransaction("txn_1", json.RawMessage(payload), time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, tx))
	got, err := s.Get(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, payload, string(got.Payload))
	assert.True(t, tx.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, tx.MarkSyncing())
	require.NoError(t, tx.MarkFailed("HTTP 500"))
	require.NoError(t, s.Put(ctx, tx))

	failed, err := s.ListByStatus(ctx, queue.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "HTTP 500", *failed[0].LastError)

	require.NoError(t, s.Delete(ctx, "txn_1"))
	_, err = s.Get(ctx, "txn_1")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestStore_SecondClaimLoses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, err := queue.NewTransaction("txn_1", json.RawMessage(`{"a":1}`), time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, tx))

	// Two terminals read the same pending row and both try to claim it.
	first, err := s.Get(ctx, "txn_1")
	require.NoError(t, err)
	second, err := s.Get(ctx, "txn_1")
	require.NoError(t, err)
	require.NoError(t, first.MarkSyncing())
	require.NoError(t, second.MarkSyncing())

	require.NoError(t, s.Put(ctx, first))
	assert.ErrorIs(t, s.Put(ctx, second), domainErrors.ErrTransactionInFlight)

	got, err := s.Get(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSyncing, got.Status)
}
