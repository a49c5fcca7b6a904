package controller

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by the durable stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	store Pinger
}

func NewHealthController(store Pinger) *HealthController {
	return &HealthController{store: store}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness reports 503 while the durable store is unreachable. The queue
// keeps accepting sales in memory meanwhile.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "durable store unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
