package heatsim

import "errors"

var (
	// ErrEmptyHeat is returned when the server lists no athletes for the heat.
	ErrEmptyHeat = errors.New("heat has no athletes")
	// ErrNoJudges is returned when the panel is empty.
	ErrNoJudges = errors.New("no judges configured")
	// ErrMismatch wraps every difference between served and expected standings.
	ErrMismatch = errors.New("standings mismatch")
)
