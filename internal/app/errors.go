package service

import "errors"

// Sentinel kinds returned by Service methods.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrStopped      = errors.New("service stopped; create a new one to restart")
	ErrInvalidEvent = errors.New("invalid event")
	ErrInvalidQuery = errors.New("invalid query")
	ErrBackpressure = errors.New("ingest queue is full")
)
