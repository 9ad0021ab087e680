package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/heatscore/internal/adapters/repository"
	service "github.com/okian/heatscore/internal/app"
	"github.com/okian/heatscore/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("too many requests")
)

// Client-facing messages. Internal error text never reaches the client.
const (
	msgRunResultNotFound = "Run result not found"
	msgAmbiguous         = "Ambiguous run result"
	msgInvalidPasscode   = "Invalid passcode"
	msgUnauthorized      = "Panel session required"
	msgForbidden         = "Panel session does not cover this score"
	msgNotReady          = "Service not ready"
	msgSessionsDisabled  = "Panel sessions are not enabled"
	msgTimeout           = "Request timed out"
	msgServerError       = "Server error"
)

type paramError struct {
	name string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s", e.name)
}

func (e *paramError) Unwrap() error { return ErrBadRequest }

// statusFor maps service and domain errors to a status code and a
// client-safe message.
func statusFor(err error) (int, string) {
	var pe *paramError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest, pe.Error()
	case errors.Is(err, model.ErrInvalidSubmission):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrInvalidScope):
		return http.StatusBadRequest, "round_heat_id or round_id is required"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrRunResultNotFound):
		return http.StatusNotFound, msgRunResultNotFound
	case errors.Is(err, model.ErrAmbiguousRunResult):
		return http.StatusConflict, msgAmbiguous
	case errors.Is(err, model.ErrInvalidPasscode):
		return http.StatusUnauthorized, msgInvalidPasscode
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	case errors.Is(err, service.ErrSessionsDisabled):
		return http.StatusNotImplemented, msgSessionsDisabled
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, msgNotReady
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeError(w, status, msg)
}
