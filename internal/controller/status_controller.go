package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cassiomorais/posqueue/internal/application/status"
)

// StatusSource is the read side of the status facade.
type StatusSource interface {
	Snapshot() status.Snapshot
	Subscribe(fn func(status.Snapshot)) (unsubscribe func())
}

// ConnectivityPusher accepts online state from outside the process.
type ConnectivityPusher interface {
	Push(online bool) bool
}

type StatusController struct {
	status StatusSource
	manual ConnectivityPusher
}

// NewStatusController builds the status endpoints. manual is nil unless
// connectivity is pushed by an operator or a dispatcher hook.
func NewStatusController(s StatusSource, manual ConnectivityPusher) *StatusController {
	return &StatusController{status: s, manual: manual}
}

func (c *StatusController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.status.Snapshot())
}

// Events streams snapshots as server-sent events, starting with the
// current one. Slow readers miss intermediate snapshots, never the latest.
func (c *StatusController) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "streaming unsupported", Code: "streaming_unsupported"})
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	updates := make(chan status.Snapshot, 1)
	unsubscribe := c.status.Subscribe(func(s status.Snapshot) {
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(s status.Snapshot) bool {
		data, err := json.Marshal(s)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(c.status.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			if !send(s) {
				return
			}
		}
	}
}

// SetConnectivity handles PUT /api/v1/connectivity.
func (c *StatusController) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	if c.manual == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "connectivity is detected automatically; set connectivity.source to manual",
			Code:  "connectivity_not_manual",
		})
		return
	}

	var req ConnectivityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if !c.manual.Push(*req.Online) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "connectivity watcher not running", Code: "watcher_unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, ConnectivityResponse{Online: *req.Online})
}
