package models

import "errors"

// Error taxonomy shared across the engine, coordinator, and read paths.
// Callers classify with errors.Is; the API layer maps each sentinel to an
// HTTP status.
var (
	// ErrValidation marks missing or malformed input, fatal to the single
	// request that carried it.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidDecision marks a HITL decision outside approve/reject/escalate.
	ErrInvalidDecision = errors.New("invalid hitl decision")

	// ErrAlreadyDecided marks a guarded HITL update that lost to an earlier
	// decision on the same case.
	ErrAlreadyDecided = errors.New("hitl case already decided")

	// ErrNotFound marks a lookup that matched no stored record.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable marks a repository that could not be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
