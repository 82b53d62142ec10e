package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates an alias or record could not be resolved
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable indicates a remote host was unreachable or answered with a non-success status
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse indicates a remote payload or reference document could not be decoded
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConflict indicates a duplicate primary key or a lost update race
	ErrConflict = errors.New("conflict")

	// ErrPreconditionMissing indicates the chart for a (song, difficulty) pair is absent
	ErrPreconditionMissing = errors.New("precondition missing")

	// ErrInvalidInput indicates a submission failed basic validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
