package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/rteval-parser/internal/schema"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Insert writes every record of rs through one prepared INSERT statement.
//
// The statement is built from the field list, so its compile cost does not
// depend on the record count. It is prepared even when rs has no records,
// and released before Insert returns.
//
// When rs.Key is set each execution must return exactly one row and the
// result holds that key; otherwise the result holds the row identifier from
// the command tag under FallbackKeyName ("0" when the store has none).
//
// Insert stops at the first failing record and returns an *ExecError. Rows
// inserted for earlier records are not removed; wrap the call in a
// transaction, or use InsertAtomic, when the set must be all-or-nothing.
func Insert(ctx context.Context, conn Conn, rs *RecordSet) ([]KeyValue, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	sql, err := buildInsert(rs)
	if err != nil {
		return nil, err
	}

	name := "rteval_insert_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := conn.Prepare(ctx, name, sql); err != nil {
		return nil, fmt.Errorf("prepare insert into %s: %w", rs.Table, Classify(err, ErrPrepare))
	}
	defer func() {
		// Use a fresh context so a cancelled call still releases the statement.
		if err := conn.Deallocate(context.WithoutCancel(ctx), name); err != nil {
			slog.Warn("deallocate prepared statement failed",
				"table", rs.Table,
				"statement", name,
				"error", err,
			)
		}
	}()

	results := make([]KeyValue, 0, len(rs.Records))
	for i := range rs.Records {
		args, err := rs.args(i)
		if err != nil {
			return nil, err
		}

		kv, err := execRecord(ctx, conn, name, rs.Key, args)
		if err != nil {
			return nil, &ExecError{Table: rs.Table, Index: i + 1, Err: Classify(err, ErrExec)}
		}
		results = append(results, kv)
	}

	return results, nil
}

// InsertAtomic is Insert guarded by a savepoint: when any record fails, the
// rows of this call are rolled back and the enclosing transaction stays
// usable. It must be called inside an open transaction (see Begin).
func InsertAtomic(ctx context.Context, conn Conn, rs *RecordSet) ([]KeyValue, error) {
	sp := pgx.Identifier{"sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")}.Sanitize()

	if _, err := conn.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", Classify(err, ErrTransaction))
	}

	results, err := Insert(ctx, conn, rs)
	if err != nil {
		if _, rbErr := conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return nil, fmt.Errorf("%w; rollback to savepoint: %w", err, Classify(rbErr, ErrTransaction))
		}
		return nil, err
	}

	if _, err := conn.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return nil, fmt.Errorf("release savepoint: %w", Classify(err, ErrTransaction))
	}
	return results, nil
}

func execRecord(ctx context.Context, conn Conn, stmt, key string, args []any) (KeyValue, error) {
	if key != "" {
		var v any
		if err := conn.QueryRow(ctx, stmt, args...).Scan(&v); err != nil {
			// A trigger or rule can swallow the row while the connection is fine.
			if errors.Is(err, pgx.ErrNoRows) {
				return KeyValue{}, fmt.Errorf("%w: no %s returned", ErrExec, key)
			}
			return KeyValue{}, err
		}
		return KeyValue{Name: key, Value: fmt.Sprint(v)}, nil
	}

	tag, err := conn.Exec(ctx, stmt, args...)
	if err != nil {
		return KeyValue{}, err
	}
	if !tag.Insert() {
		return KeyValue{}, fmt.Errorf("%w: unexpected command tag %q", ErrExec, tag.String())
	}
	return KeyValue{Name: FallbackKeyName, Value: rowIdentifier(tag)}, nil
}

// rowIdentifier extracts the OID from an "INSERT <oid> <rows>" tag.
// Servers without OID support report 0, as does a malformed tag.
func rowIdentifier(tag pgconn.CommandTag) string {
	parts := strings.Fields(tag.String())
	if len(parts) == 3 && parts[0] == "INSERT" {
		return parts[1]
	}
	return "0"
}

// buildInsert renders the INSERT statement for rs after checking every
// identifier against the schema allowlist.
func buildInsert(rs *RecordSet) (string, error) {
	table, ok := schema.Lookup(rs.Table)
	if !ok {
		return "", Malformed("unknown table %q", rs.Table)
	}

	cols := make([]string, len(rs.Fields))
	params := make([]string, len(rs.Fields))
	for i, f := range rs.Fields {
		if !table.HasColumn(f.Name) {
			return "", Malformed("%s: unknown column %q", rs.Table, f.Name)
		}
		cols[i] = pgx.Identifier{strings.ToLower(f.Name)}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{strings.ToLower(table.Name)}.Sanitize(),
		strings.Join(cols, ","),
		strings.Join(params, ","),
	)

	if rs.Key != "" {
		if !table.HasColumn(rs.Key) {
			return "", Malformed("%s: unknown key column %q", rs.Table, rs.Key)
		}
		b.WriteString(" RETURNING ")
		b.WriteString(pgx.Identifier{strings.ToLower(rs.Key)}.Sanitize())
	}

	return b.String(), nil
}
