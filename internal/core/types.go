package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the opaque connection handle the core works against.
// Satisfied by *pgx.Conn; workers obtain one from a pool with
// (*pgxpool.Conn).Conn().
//
// A Conn is single-statement-at-a-time. It must not be shared between
// goroutines while a call into this package is running.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
	Deallocate(ctx context.Context, name string) error
}

// FallbackKeyName is the result name used when a RecordSet has no
// RETURNING key and the store-assigned row identifier is reported instead.
const FallbackKeyName = "oid"

// KeyValue is the result of inserting one record.
type KeyValue struct {
	Name  string // Key field name, or FallbackKeyName
	Value string // Returned key value, or the row identifier ("0" if unsupported)
}
