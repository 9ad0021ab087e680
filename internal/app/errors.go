package service

import "errors"

var (
	ErrNotStarted       = errors.New("service not started")
	ErrNoStore          = errors.New("service has no store")
	ErrSessionsDisabled = errors.New("panel sessions are not configured")
)
