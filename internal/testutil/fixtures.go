package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/stretchr/testify/require"
)

// SalePayload returns a distinct sale document for index n.
func SalePayload(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"sale":%d,"items":[{"sku":"SKU-%d","qty":1}],"total_cents":%d}`, n, n, n*100))
}

// NewTestTransaction builds a pending record created at createdAt.
func NewTestTransaction(t *testing.T, localID string, createdAt time.Time) *domainQueue.Transaction {
	t.Helper()
	tx, err := domainQueue.NewTransaction(localID, SalePayload(1), createdAt)
	require.NoError(t, err)
	return tx
}

// NewFailedTransaction builds a failed record with the given retry count.
func NewFailedTransaction(t *testing.T, localID string, createdAt time.Time, retryCount int) *domainQueue.Transaction {
	t.Helper()
	tx := NewTestTransaction(t, localID, createdAt)
	msg := "HTTP 500"
	tx.Status = domainQueue.StatusFailed
	tx.RetryCount = retryCount
	tx.LastError = &msg
	return tx
}

// NewSyncedTransaction builds a synced record synced at syncedAt.
func NewSyncedTransaction(t *testing.T, localID string, createdAt, syncedAt time.Time) *domainQueue.Transaction {
	t.Helper()
	tx := NewTestTransaction(t, localID, createdAt)
	require.NoError(t, tx.MarkSyncing())
	require.NoError(t, tx.MarkSynced("srv-"+localID, syncedAt))
	return tx
}

// Seed writes every record into store.
func Seed(t *testing.T, store domainQueue.Store, txs ...*domainQueue.Transaction) {
	t.Helper()
	for _, tx := range txs {
		require.NoError(t, store.Put(context.Background(), tx))
	}
}
