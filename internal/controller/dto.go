package controller

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cassiomorais/posqueue/internal/application/syncengine"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
)

// --- Request DTOs ---

// EnqueueRequest carries one sale document. Payload is stored and
// submitted exactly as received.
type EnqueueRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// CleanupRequest overrides the configured retention when OlderThanDays is set.
type CleanupRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty" validate:"omitempty,gte=0"`
}

// ConnectivityRequest pushes the online state when the manual watcher is in use.
type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// --- Response DTOs ---

type EnqueueResponse struct {
	LocalID string `json:"local_id"`
}

// TransactionResponse represents a queued transaction in API responses.
type TransactionResponse struct {
	LocalID    string          `json:"local_id"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	SyncedAt   *time.Time      `json:"synced_at,omitempty"`
	RemoteID   *string         `json:"remote_id,omitempty"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Count        int                   `json:"count"`
}

// transactionMeta is the part of TransactionResponse that encoding/json may
// write. The payload is spliced in by AppendJSON because encoding/json
// compacts RawMessage values.
type transactionMeta struct {
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
	RemoteID   *string    `json:"remote_id,omitempty"`
	RetryCount int        `json:"retry_count"`
	LastError  *string    `json:"last_error,omitempty"`
}

// AppendJSON appends t to dst with the payload bytes exactly as stored.
func (t TransactionResponse) AppendJSON(dst []byte) ([]byte, error) {
	id, err := json.Marshal(t.LocalID)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(transactionMeta{
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		SyncedAt:   t.SyncedAt,
		RemoteID:   t.RemoteID,
		RetryCount: t.RetryCount,
		LastError:  t.LastError,
	})
	if err != nil {
		return nil, err
	}
	payload := []byte(t.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	dst = append(dst, `{"local_id":`...)
	dst = append(dst, id...)
	dst = append(dst, `,"payload":`...)
	dst = append(dst, payload...)
	dst = append(dst, ',')
	return append(dst, meta[1:]...), nil
}

// AppendJSON appends l to dst, keeping every payload as stored.
func (l ListTransactionsResponse) AppendJSON(dst []byte) ([]byte, error) {
	dst = append(dst, `{"transactions":[`...)
	for i, t := range l.Transactions {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		if dst, err = t.AppendJSON(dst); err != nil {
			return nil, err
		}
	}
	dst = append(dst, `],"count":`...)
	dst = strconv.AppendInt(dst, int64(l.Count), 10)
	return append(dst, '}'), nil
}

// SyncResponse is one drain's result plus its status line.
type SyncResponse struct {
	syncengine.Result
	Message string `json:"message"`
}

type RetryFailedResponse struct {
	Requeued int `json:"requeued"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

type ConnectivityResponse struct {
	Online bool `json:"online"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Converters ---

func toTransactionResponse(t *domainQueue.Transaction) TransactionResponse {
	return TransactionResponse{
		LocalID:    t.LocalID,
		Payload:    t.Payload,
		Status:     t.Status.String(),
		CreatedAt:  t.CreatedAt,
		SyncedAt:   t.SyncedAt,
		RemoteID:   t.RemoteID,
		RetryCount: t.RetryCount,
		LastError:  t.LastError,
	}
}

func toListResponse(txs []*domainQueue.Transaction) ListTransactionsResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return ListTransactionsResponse{Transactions: out, Count: len(out)}
}
