// Package data is the typed, transactional data access boundary. Every
// repository accepts a DBTX so the same code runs standalone or inside
// the Payment Authorizer's transaction.
package data

import (
	"context"
	"database/sql"
	"errors"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
