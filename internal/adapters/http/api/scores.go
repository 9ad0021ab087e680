package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// maxBodyBytes bounds request bodies; a score is a handful of numbers.
const maxBodyBytes = 1 << 16

// ScoresHandler serves score submission and best-score reads.
type ScoresHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies, log logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, logger: log}
}

// HandleSubmit handles POST /api/scores.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub model.ScoreSubmission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	var session *model.PanelSession
	if h.deps.RequiresSession() {
		s, err := h.bearerSession(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		session = &s
	}

	res, err := h.deps.Submit(r.Context(), sub, session)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "score submission failed",
				logger.Int64("round_heat_id", sub.RoundHeatID),
				logger.Int("run_num", sub.RunNum),
				logger.Int64("personnel_id", sub.PersonnelID),
				logger.Int64("athlete_id", sub.AthleteID),
				logger.Error(err),
			)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitResponse{Success: true, Duplicate: res.Duplicate})
}

func (h *ScoresHandler) bearerSession(r *http.Request) (model.PanelSession, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return model.PanelSession{}, model.ErrUnauthorized
	}
	return h.deps.ParseSession(strings.TrimSpace(token))
}

// HandleBest handles GET /api/scores/best. With personnel_id it returns
// that judge's best per bib, otherwise each athlete's best.
func (h *ScoresHandler) HandleBest(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var body any
	if scope.PersonnelID > 0 {
		body, err = h.deps.JudgeBest(r.Context(), scope)
	} else {
		body, err = h.deps.BestScores(r.Context(), scope)
	}
	if err != nil {
		h.logReadError(r.Context(), "best scores", scope.RoundHeatID, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *ScoresHandler) logReadError(ctx context.Context, view string, heatID int64, err error) {
	if status, _ := statusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(ctx, fmt.Sprintf("%s query failed", view), logger.Int64("round_heat_id", heatID), logger.Error(err))
	}
}
