// Package sqldb carries the transaction plumbing shared by the
// database/sql backed stores.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a *sql.DB and injects the active transaction into contexts.
type DB struct {
	db   *sql.DB
	opts *sql.TxOptions
}

type txKey struct{ db *DB }

// New wraps db. opts is used for every transaction and may be nil.
func New(db *sql.DB, opts *sql.TxOptions) *DB {
	return &DB{db: db, opts: opts}
}

// Raw returns the wrapped *sql.DB.
func (d *DB) Raw() *sql.DB { return d.db }

// Tx returns the transaction carried by ctx, if any.
func (d *DB) Tx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{d}).(*sql.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or the pool.
func (d *DB) Conn(ctx context.Context) Querier {
	if tx, ok := d.Tx(ctx); ok {
		return tx
	}
	return d.db
}

// RunInTx runs fn in a transaction. A ctx already carrying a transaction
// of this DB is reused as is.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := d.Tx(ctx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTx(ctx, d.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// Ensure rollback on panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{d}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
