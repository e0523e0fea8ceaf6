package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"ms-booking/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("select: %w", context.DeadlineExceeded), models.ErrStoreUnavailable},
		{"canceled", context.Canceled, models.ErrStoreUnavailable},
		{"conn done", sql.ErrConnDone, models.ErrStoreUnavailable},
		{"serialization", &pq.Error{Code: "40001"}, models.ErrConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, models.ErrConflict},
		{"unique", &pq.Error{Code: "23505"}, models.ErrConflict},
		{"connection failure", &pq.Error{Code: "08006"}, models.ErrStoreUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, models.ErrStoreUnavailable},
		{"numeric overflow", &pq.Error{Code: "22003"}, models.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyLeavesUnknownErrors(t *testing.T) {
	err := errors.New("syntax error")
	assert.Same(t, err, Classify(err))
	assert.Nil(t, Classify(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("tx: %w", &pq.Error{Code: "40001"})))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
	assert.False(t, IsUniqueViolation(nil))
}
