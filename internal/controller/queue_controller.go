package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/go-chi/chi/v5"
)

// QueueService is the queue manager as seen by the API.
type QueueService interface {
	Enqueue(ctx context.Context, payload json.RawMessage) (string, error)
	Get(ctx context.Context, localID string) (*domainQueue.Transaction, error)
	List(ctx context.Context, statuses ...domainQueue.Status) ([]*domainQueue.Transaction, error)
	Delete(ctx context.Context, localID string) error
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
}

type QueueController struct {
	queue         QueueService
	retentionDays int
}

func NewQueueController(queue QueueService, retentionDays int) *QueueController {
	return &QueueController{queue: queue, retentionDays: retentionDays}
}

// Enqueue handles POST /api/v1/transactions. It returns once the record is
// durably stored.
func (c *QueueController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if bytes.Equal(bytes.TrimSpace(req.Payload), []byte("null")) {
		writeError(w, domainErrors.NewValidationError("payload", "must not be null"))
		return
	}

	localID, err := c.queue.Enqueue(r.Context(), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, EnqueueResponse{LocalID: localID})
}

// List handles GET /api/v1/transactions?status=pending,failed.
func (c *QueueController) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}

	txs, err := c.queue.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeDocument(w, http.StatusOK, toListResponse(txs))
}

func (c *QueueController) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := c.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeDocument(w, http.StatusOK, toTransactionResponse(tx))
}

func (c *QueueController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.queue.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Cleanup handles POST /api/v1/cleanup. An empty body uses the configured
// retention.
func (c *QueueController) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := c.retentionDays
	if r.ContentLength != 0 {
		var req CleanupRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.OlderThanDays != nil {
			days = *req.OlderThanDays
		}
	}

	deleted, err := c.queue.Cleanup(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}

func parseStatuses(raw string) ([]domainQueue.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domainQueue.Status
	for _, part := range strings.Split(raw, ",") {
		s, err := domainQueue.ParseStatus(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
