package api

import (
	"net/http"
	"strconv"

	"quizgen/internal/store"
)

// handleStats reports event history totals, recent events, and rolling
// latency percentiles for the synchronous endpoint.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.events.Totals(r.Context())
	if err != nil {
		jsonError(w, "failed to aggregate events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	recent, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to read events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []store.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totals":       totals,
		"recent":       recent,
		"sync_latency": s.stats.Snapshot(),
		"queue_depth":  s.orchestrator.QueueDepth(),
	})
}
