package pgutils

import (
	"context"
	"database/sql"
	"fmt"
)

// withTxOptions runs fn inside a transaction with the given options.
// It commits if fn returns nil, otherwise it rolls back and returns fn's
// error unchanged so sentinel matching survives the wrapper.
func withTxOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("rollback after fn error: %v (fn err: %w)", rbErr, err)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
