package model

import "errors"

// Errors shared across the scoring path. Transport layers translate them
// to status codes and back.
var (
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrRunResultNotFound  = errors.New("run result not found")
	ErrAmbiguousRunResult = errors.New("ambiguous run result")
	ErrUnauthorized       = errors.New("panel session required")
	ErrForbidden          = errors.New("panel session does not cover submission")
	ErrInvalidPasscode    = errors.New("invalid passcode")
)

// IsPermanent reports whether retrying err can never succeed. The drainer
// rejects such submissions instead of pausing on them.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrRunResultNotFound) ||
		errors.Is(err, ErrAmbiguousRunResult)
}
