package domain

import (
	"errors"
	"fmt"
)

// Error categories. Callers branch on these with errors.Is.
var (
	// ErrUnauthorized is returned when no caller identity is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is the parent of every unknown-id error.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation does not apply to the match's current status.
	ErrInvalidState = errors.New("invalid match state")
	// ErrStorageUnavailable means the backing store is unreachable or its schema is missing.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var (
	ErrMatchNotFound    = fmt.Errorf("match %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	ErrMatchNotJoinable   = fmt.Errorf("match not joinable: %w", ErrInvalidState)
	ErrCannotJoinOwnMatch = fmt.Errorf("cannot join own match: %w", ErrInvalidState)
	ErrMatchNotActive     = fmt.Errorf("match not active: %w", ErrInvalidState)
	ErrNotParticipant     = fmt.Errorf("player is not in this match: %w", ErrInvalidState)

	// ErrInsufficientQuestions is returned when the catalog cannot fill a question set.
	ErrInsufficientQuestions = errors.New("insufficient questions in catalog")
	// ErrInvalidCatalogItem marks a catalog entry that does not have four options including the answer.
	ErrInvalidCatalogItem = errors.New("invalid catalog item")
)

// Unavailable wraps a storage driver error so it matches ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
