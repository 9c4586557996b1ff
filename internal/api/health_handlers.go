package api

import (
	"database/sql"
	"net/http"
)

// HealthHandler serves /healthz, gating readiness on the one thing that
// matters here: can the process reach the database.
type HealthHandler struct {
	DB *sql.DB
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
