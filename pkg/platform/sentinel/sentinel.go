package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: the game, user or profile does not exist in the store
//   - ErrConflict: a transactional store aborted the write; safe to retry
//   - ErrAlreadyUsed: a unique key (username, student id) is taken
//   - ErrUnavailable: the storage medium cannot be reached
//
// Capacity and membership outcomes are not errors at this layer; the roster
// store reports them as values.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
