package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError wraps a database failure as a Storage error, marking the classes that are
// expected to clear on their own as Retryable:
// - connection exceptions and admin shutdowns
// - serialization failures, deadlocks and lock timeouts
// - network errors and context deadlines
//
// Context cancellation is returned unchanged so callers can treat shutdown as shutdown.
func MapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	appErr := Storage(op, err)

	if errors.Is(err, context.DeadlineExceeded) {
		appErr.Retryable = true
		return appErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		appErr.Retryable = retryablePgCode(pgErr.Code)
		return appErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		appErr.Retryable = true
		return appErr
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		appErr.Retryable = true
	}
	return appErr
}

func retryablePgCode(code string) bool {
	switch {
	case pgerrcode.IsConnectionException(code):
		return true
	case pgerrcode.IsOperatorIntervention(code):
		// admin_shutdown, crash_shutdown, cannot_connect_now
		return code != pgerrcode.QueryCanceled
	case code == pgerrcode.SerializationFailure,
		code == pgerrcode.DeadlockDetected,
		code == pgerrcode.LockNotAvailable,
		code == pgerrcode.TooManyConnections:
		return true
	default:
		return false
	}
}
