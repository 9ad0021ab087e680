package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/heatscore/internal/adapters/repository"
	"github.com/okian/heatscore/internal/domain/gate"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

// OpenSession verifies a judge's passcode server-side and issues a panel
// session for the requested heat. Every mismatch reports ErrInvalidPasscode
// so callers cannot probe which part was wrong.
func (s *Service) OpenSession(ctx context.Context, req types.SessionRequest) (types.SessionResponse, error) {
	if err := s.running(); err != nil {
		return types.SessionResponse{}, err
	}
	if s.issuer == nil {
		return types.SessionResponse{}, ErrSessionsDisabled
	}
	log := s.logger.With(logger.Int64("personnel_id", req.PersonnelID), logger.Int64("round_heat_id", req.RoundHeatID))

	eventID, hash, err := s.store.JudgeCredentials(ctx, req.PersonnelID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return types.SessionResponse{}, fmt.Errorf("judge credentials: %w", err)
	}
	if err != nil || !gate.Match(req.Passcode, hash) {
		metrics.RecordPanelSession("rejected")
		log.Warn(ctx, "passcode rejected")
		return types.SessionResponse{}, model.ErrInvalidPasscode
	}

	heat, err := s.store.HeatContext(ctx, req.RoundHeatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return types.SessionResponse{}, fmt.Errorf("heat context: %w", err)
	}
	if err != nil || heat.EventID != eventID || !matches(req, heat) {
		metrics.RecordPanelSession("rejected")
		log.Warn(ctx, "session binding does not match heat")
		return types.SessionResponse{}, model.ErrInvalidPasscode
	}

	heat.PersonnelID = req.PersonnelID
	token, exp, err := s.issuer.Issue(heat)
	if err != nil {
		return types.SessionResponse{}, err
	}
	metrics.RecordPanelSession("issued")
	log.Info(ctx, "panel session issued")
	return types.SessionResponse{Token: token, ExpiresAt: exp}, nil
}

// matches checks the optional ids of a request against the heat's context.
func matches(req types.SessionRequest, heat model.PanelSession) bool {
	ok := func(want, got int64) bool { return want == 0 || want == got }
	return ok(req.EventID, heat.EventID) && ok(req.DivisionID, heat.DivisionID) && ok(req.RoundID, heat.RoundID)
}

// ParseSession validates a bearer token.
func (s *Service) ParseSession(token string) (model.PanelSession, error) {
	if s.issuer == nil {
		return model.PanelSession{}, ErrSessionsDisabled
	}
	p, err := s.issuer.Parse(token)
	if err != nil {
		return model.PanelSession{}, fmt.Errorf("%w: %w", model.ErrUnauthorized, err)
	}
	return p, nil
}
