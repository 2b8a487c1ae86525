package marketerrors

import "errors"

// Store-level errors
var (
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("operation timed out")
	ErrStoreFailure = errors.New("store failure")
)

// Workflow errors
var (
	ErrInvalidState      = errors.New("invalid state")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateBid      = errors.New("duplicate bid")
	ErrInvalidInput      = errors.New("invalid input")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidState,
	ErrAlreadyResolved,
	ErrUnauthorized,
	ErrUnauthenticated,
	ErrInsufficientStock,
	ErrDuplicateBid,
	ErrInvalidInput,
	ErrTimeout,
	ErrStoreFailure,
}

// Kind returns the sentinel err is tagged with, or nil for untagged errors.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRetryable reports whether a caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStoreFailure)
}
