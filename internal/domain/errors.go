package domain

import "errors"

var (
	// ErrInvalidConfig marks configuration problems detected before a solve starts.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrProtocol marks a malformed or out-of-contract worker message.
	ErrProtocol = errors.New("protocol violation")
	// ErrNotInitialized is returned when the dispatcher has no active solve.
	ErrNotInitialized = errors.New("dispatcher not initialized")
	// ErrDuplicateUpdate is returned for an update from a worker that is
	// already waiting for work. It changes no state.
	ErrDuplicateUpdate = errors.New("duplicate update")
	// ErrUnknownWorker is returned for worker ids outside the configured set.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrTooManyWorkers is returned when more distinct workers join than configured.
	ErrTooManyWorkers = errors.New("too many workers")
	// ErrCheckpointNotFound is returned when no checkpoint exists for a solve.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrUnavailable is returned while this process serves no solve, for
	// example before it won the leader election.
	ErrUnavailable = errors.New("dispatcher unavailable")
	// ErrResultNotFound is returned when no result was recorded for a solve.
	ErrResultNotFound = errors.New("solve result not found")
)
