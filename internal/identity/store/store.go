package store

import (
	"fmt"

	"dropin/pkg/platform/sentinel"
)

// Directory errors. Each wraps a store sentinel so callers can match either.
var (
	ErrUsernameTaken  = fmt.Errorf("username taken: %w", sentinel.ErrAlreadyUsed)
	ErrStudentExists  = fmt.Errorf("student id exists: %w", sentinel.ErrAlreadyUsed)
	ErrStudentClaimed = fmt.Errorf("student id already claimed: %w", sentinel.ErrAlreadyUsed)
	ErrStudentUnknown = fmt.Errorf("student id unknown: %w", sentinel.ErrNotFound)
)
