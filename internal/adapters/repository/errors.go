package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrMissingDSN    = errors.New("missing store connection string")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrClosed        = errors.New("store closed")
)
