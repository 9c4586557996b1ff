// Package api wires the terminal-facing HTTP surface onto
// internal/liveness, internal/payment, internal/enroll and friends.
//
// Built around a respondJSON/respondError + per-handler struct{Service}
// shape, adapted to the single envelope every endpoint here shares:
// {ok, data?, code?, message?, details?}.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/technosupport/canteen-authz/internal/apierr"
)

// decodeJSON decodes a JSON request body into dst. Kept as a named helper
// (rather than inlined per handler) since every POST endpoint here needs
// the same one-shot Decode.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

type envelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{OK: true, Data: data})
}

func respondErr(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		respondJSON(w, apiErr.Status, envelope{OK: false, Code: apiErr.Code, Message: apiErr.Message})
		return
	}
	respondJSON(w, http.StatusInternalServerError, envelope{OK: false, Code: "INTERNAL", Message: "internal error"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
