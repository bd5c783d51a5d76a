// Package repository holds the hand-written SQL persistence layer. Money
// movements always run as guarded single-statement updates (balance =
// balance ± delta with a status or balance condition), never as a read
// followed by a write, so concurrent and duplicated events stay safe.
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// withinTx runs fn inside a transaction, rolling back on error.
func withinTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}
