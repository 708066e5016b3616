// Package dbx carries the shared database plumbing: a minimal statement
// interface satisfied by both *sql.DB and *sql.Tx, and a transaction helper.
// Repositories are written against DBTX so a save can run the entry row and
// its attachment rows through one transaction.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the slice of database/sql the repositories need. Both *sql.DB and
// *sql.Tx satisfy it, so the same repository works standalone or inside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit when fn returns nil, rollback
// when it returns an error or panics (the panic is rethrown).
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    if err := entries.NewSQLiteRepository(tx).Upsert(ctx, e); err != nil {
//	        return err
//	    }
//	    return attachments.NewSQLiteRepository(tx).Insert(ctx, a)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
