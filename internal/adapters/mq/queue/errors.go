package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrStorageFull = errors.New("score queue is full")
	ErrStorage     = errors.New("score queue storage failed")
	ErrNoStorage   = errors.New("score queue has no storage")
	ErrEmpty       = errors.New("score queue is empty")
	ErrNotFront    = errors.New("submission is not at the front of the queue")
	ErrNotFound    = errors.New("submission not found")
)
