package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/heatscore/pkg/logger"
)

// StandingsHandler serves the ranking views.
type StandingsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(deps Dependencies, log logger.Logger) *StandingsHandler {
	return &StandingsHandler{deps: deps, logger: log}
}

// HandleStandings handles GET /api/standings?round_heat_id=N or ?round_id=N.
func (h *StandingsHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	st, err := h.deps.Standings(r.Context(), scope)
	if err != nil {
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "standings query failed",
				logger.Int64("round_heat_id", scope.RoundHeatID),
				logger.Int64("round_id", scope.RoundID),
				logger.Error(err),
			)
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRunBoard handles GET /api/heats/{roundHeatID}/runs.
func (h *StandingsHandler) HandleRunBoard(w http.ResponseWriter, r *http.Request) {
	heatID, err := strconv.ParseInt(chi.URLParam(r, "roundHeatID"), 10, 64)
	if err != nil || heatID <= 0 {
		writeServiceError(w, &paramError{name: "roundHeatID"})
		return
	}
	board, err := h.deps.RunBoard(r.Context(), heatID)
	if err != nil {
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "run board query failed", logger.Int64("round_heat_id", heatID), logger.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
