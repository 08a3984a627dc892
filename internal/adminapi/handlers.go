package adminapi

import (
	"net/http"
	"strconv"
)

// handleTasks renders a bounded, newest-first JSON snapshot of the
// registry. ?limit=N caps how many records come back; an absent or
// invalid limit returns everything the registry holds.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	body, err := s.reg.SnapshotJSON(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}
