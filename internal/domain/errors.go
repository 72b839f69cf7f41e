package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrVenueNoData    = errors.New("venue returned no data")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnexpectedCode = errors.New("unexpected status code")
)
