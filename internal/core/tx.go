package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Begin starts a transaction on conn.
//
// Transactions do not nest: calling Begin while one is open on the same
// connection is a caller error and is not detected here.
func Begin(ctx context.Context, conn Conn) error {
	return txControl(ctx, conn, "BEGIN")
}

// Commit commits the open transaction on conn.
func Commit(ctx context.Context, conn Conn) error {
	return txControl(ctx, conn, "COMMIT")
}

// Rollback aborts the open transaction on conn.
func Rollback(ctx context.Context, conn Conn) error {
	return txControl(ctx, conn, "ROLLBACK")
}

func txControl(ctx context.Context, conn Conn, stmt string) error {
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", stmt, Classify(err, ErrTransaction))
	}
	return nil
}

// InTransaction runs fn between Begin and Commit. If fn fails the
// transaction is rolled back and fn's error is returned, joined with the
// rollback error if that failed too.
func InTransaction(ctx context.Context, conn Conn, fn func(ctx context.Context) error) error {
	if err := Begin(ctx, conn); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		// Roll back even if ctx was cancelled mid-phase.
		if rbErr := Rollback(context.WithoutCancel(ctx), conn); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr, "cause", err)
			return errors.Join(err, rbErr)
		}
		return err
	}

	return Commit(ctx, conn)
}
