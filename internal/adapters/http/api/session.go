package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// SessionHandler opens judging panel sessions.
type SessionHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies, log logger.Logger) *SessionHandler {
	return &SessionHandler{deps: deps, logger: log}
}

// HandleOpenSession handles POST /api/panel/session.
func (h *SessionHandler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.PersonnelID <= 0 || req.RoundHeatID <= 0 || req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "personnel_id, round_heat_id and passcode are required")
		return
	}

	resp, err := h.deps.OpenSession(r.Context(), req)
	if err != nil {
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "open panel session failed", logger.Int64("personnel_id", req.PersonnelID), logger.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
