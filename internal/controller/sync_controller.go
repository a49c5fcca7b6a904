package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/posqueue/internal/application/syncengine"
	"github.com/go-chi/chi/v5"
)

// SyncService is the sync engine as seen by the API.
type SyncService interface {
	SyncAll(ctx context.Context) syncengine.Result
	RetryFailed(ctx context.Context) (int, error)
	ResetForRetry(ctx context.Context, localID string) error
}

type SyncController struct {
	engine SyncService
}

func NewSyncController(engine SyncService) *SyncController {
	return &SyncController{engine: engine}
}

// Sync handles POST /api/v1/sync. It runs one drain and reports its
// result; a busy or offline engine answers 200 with the skip reason.
func (c *SyncController) Sync(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not stop the drain between records.
	res := c.engine.SyncAll(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusOK, SyncResponse{Result: res, Message: res.Message()})
}

func (c *SyncController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := c.engine.RetryFailed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RetryFailedResponse{Requeued: n})
}

// Reset handles POST /api/v1/transactions/{id}/reset, the operator
// override for a record that exhausted its retries.
func (c *SyncController) Reset(w http.ResponseWriter, r *http.Request) {
	if err := c.engine.ResetForRetry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
