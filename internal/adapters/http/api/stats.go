package api

import (
	"net/http"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	status StatusProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(status StatusProvider) *StatsHandler {
	return &StatsHandler{status: status}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status(r.Context()))
}
