package gate

import "errors"

var (
	ErrEmptySecret   = errors.New("session secret must not be empty")
	ErrEmptyPasscode = errors.New("passcode must not be empty")
	ErrInvalidToken  = errors.New("invalid panel session token")
	ErrExpiredToken  = errors.New("panel session expired")
)
