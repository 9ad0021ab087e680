package worker

import "errors"

// Sentinel kinds for drainer errors.
var (
	ErrDrainInProgress = errors.New("drain cycle already in progress")
	ErrOffline         = errors.New("station is offline")
)
