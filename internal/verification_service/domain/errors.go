package domain

import "errors"

var (
	// ErrNotFound indicates that a requested record or company was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a lost compare-and-set race on a record update.
	ErrConflict = errors.New("record was modified concurrently")
	// ErrBusiness indicates a genuine platform-side failure that was written
	// into the record.
	ErrBusiness = errors.New("verification failed")
	// ErrRemoteTransient indicates a network-level failure talking to the
	// platform; the call may be retried by the client.
	ErrRemoteTransient = errors.New("messaging platform unreachable")
)
