package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"ms-booking/internal/models"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Classify maps driver and context errors onto the domain error kinds while
// keeping the original error in the chain. Errors it does not recognise are
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrConflict) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeSerializationFailure, pqErr.Code == codeDeadlockDetected:
			return fmt.Errorf("%w: %w", models.ErrConflict, err)
		case pqErr.Code == codeUniqueViolation:
			return fmt.Errorf("%w: %w", models.ErrConflict, err)
		case pqErr.Code.Class() == "22":
			// data exception: numeric overflow, bad input syntax
			return fmt.Errorf("%w: %w", models.ErrInvalidRequest, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			// connection exception, operator intervention
			return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return err
}

// IsRetryable reports whether a transaction failed only because it lost a
// race with another transaction and can be replayed as is.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports a duplicate key on insert.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeUniqueViolation
	}
	// sqlite reports constraint failures as plain text
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
