package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds returned by this package. Wrapped errors keep their kind, so
// callers always test with errors.Is.
var (
	// ErrConnection means the connection is unusable. The worker owning it
	// should stop.
	ErrConnection = errors.New("database connection error")

	// ErrMalformedInput means a RecordSet violates its own invariants.
	ErrMalformedInput = errors.New("malformed input")

	// ErrPrepare means the database rejected the generated statement.
	ErrPrepare = errors.New("prepare failed")

	// ErrExec means the database rejected a record.
	ErrExec = errors.New("insert failed")

	// ErrTransaction means BEGIN, COMMIT, ROLLBACK or a savepoint failed.
	ErrTransaction = errors.New("transaction control failed")

	// ErrConsistencyViolation means stored data broke an invariant the
	// pipeline relies on, such as a sysid registered more than once.
	ErrConsistencyViolation = errors.New("consistency violation")
)

// ExecError reports the record that aborted an Insert call.
// Index is 1-based, counted in record list order.
type ExecError struct {
	Table string
	Index int
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("insert into %s: record %d: %v", e.Table, e.Index, e.Err)
}

// Unwrap exposes both the ErrExec kind and the driver error.
func (e *ExecError) Unwrap() []error {
	return []error{ErrExec, e.Err}
}

// Classify wraps a driver error with the kind it belongs to.
//
// Errors reported by the PostgreSQL server mean the connection is still
// healthy and the statement was at fault; they are wrapped with stmtKind.
// Anything else coming out of the driver (network, closed connection,
// protocol) is ErrConnection. An error already of kind stmtKind is
// returned unchanged. A nil error stays nil.
func Classify(err error, stmtKind error) error {
	if err == nil || errors.Is(err, stmtKind) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (SQLSTATE %s)", stmtKind, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// codes maps error kinds to support codes, most specific first.
var codes = []struct {
	kind error
	code string
}{
	{ErrConnection, "DB001"},
	{ErrPrepare, "DB002"},
	{ErrExec, "DB003"},
	{ErrTransaction, "DB004"},
	{ErrConsistencyViolation, "DB005"},
	{ErrMalformedInput, "VAL001"},
}

// Code returns the support code for an error, or "UNK001" when the error
// is not one of this package's kinds.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "UNK001"
}

// Malformed builds an ErrMalformedInput error.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
