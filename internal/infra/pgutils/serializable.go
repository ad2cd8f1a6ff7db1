package pgutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable reports that a transaction kept conflicting after the
// bounded retries were spent. The database is guaranteed unchanged.
var ErrUnavailable = errors.New("storage unavailable")

const (
	maxTxAttempts  = 3
	retryBaseDelay = 10 * time.Millisecond
)

// WithSerializableTx runs fn inside a SERIALIZABLE transaction. Serialization
// failures and deadlocks roll back and retry the whole fn with backoff;
// business errors from fn are returned as-is after rollback.
func WithSerializableTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("%w: retries exhausted: %w", ErrUnavailable, lastErr)
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withTxOptions(ctx, db, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

// isRetryable reports serialization_failure (40001) and deadlock_detected
// (40P01), the two conflict classes a clean retry can resolve.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	return false
}
