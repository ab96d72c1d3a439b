package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/rxledger/internal/journal"
	"github.com/erazemk/rxledger/internal/model"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventsHandler serves the journaled audit feed.
type EventsHandler struct {
	Journal *journal.Journal
}

// List handles GET /api/events?after=<seq>&limit=<n>.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}

	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.Journal.Since(after, limit)
	if err != nil {
		slog.Error("failed to read journal", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}
