package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError("op", nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_CanceledPassesThrough(t *testing.T) {
	err := MapDBError("claim", fmt.Errorf("query: %w", context.Canceled))
	if IsStorage(err) {
		t.Errorf("cancellation should not be classified as storage error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMapDBError_PgCodes(t *testing.T) {
	tests := []struct {
		name          string
		code          string
		wantRetryable bool
	}{
		{"serialization failure", pgerrcode.SerializationFailure, true},
		{"deadlock", pgerrcode.DeadlockDetected, true},
		{"lock not available", pgerrcode.LockNotAvailable, true},
		{"connection failure", pgerrcode.ConnectionFailure, true},
		{"admin shutdown", pgerrcode.AdminShutdown, true},
		{"too many connections", pgerrcode.TooManyConnections, true},
		{"query canceled", pgerrcode.QueryCanceled, false},
		{"unique violation", pgerrcode.UniqueViolation, false},
		{"undefined table", pgerrcode.UndefinedTable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError("claim", &pgconn.PgError{Code: tt.code})
			if !IsStorage(err) {
				t.Fatalf("expected storage error, got %v", err)
			}
			var appErr *AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *AppError")
			}
			if appErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", appErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestMapDBError_DeadlineIsRetryable(t *testing.T) {
	err := MapDBError("ping", context.DeadlineExceeded)
	if !IsRetryable(err) {
		t.Errorf("deadline exceeded should be retryable, got %v", err)
	}
}

func TestMapDBError_PlainErrorIsStorage(t *testing.T) {
	err := MapDBError("save job", errors.New("boom"))
	if !IsStorage(err) {
		t.Errorf("expected storage error, got %v", err)
	}
	if IsRetryable(err) {
		t.Errorf("plain storage error should not be retryable")
	}
	if got := err.Error(); got != "save job: boom" {
		t.Errorf("Error() = %q", got)
	}
}
