package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by the store, services and handlers.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// CapacityError reports a rejected admission together with the seats that
// were still free when the decision was made.
type CapacityError struct {
	EventID   int64
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded for event %d: requested %d, remaining %d", e.EventID, e.Requested, e.Remaining)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// RemainingSeats extracts the remaining count from a capacity rejection.
func RemainingSeats(err error) (int, bool) {
	var capErr *CapacityError
	if errors.As(err, &capErr) {
		return capErr.Remaining, true
	}
	return 0, false
}
