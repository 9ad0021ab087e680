package client

import "errors"

// Transport-level error kinds. All of them are retried by the drainer.
var (
	ErrUnreachable = errors.New("server unreachable")
	ErrServer      = errors.New("server error")
	ErrThrottled   = errors.New("throttled by server")
	ErrRequest     = errors.New("request refused")
)
