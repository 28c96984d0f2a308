package core

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn is an in-memory Conn. Executions of prepared statements hand out
// increasing keys; failAt makes the n-th execution (1-based) fail.
type fakeConn struct {
	mu sync.Mutex

	prepared    map[string]string
	history     []string // every prepared statement text
	prepareErr  error
	deallocated []string
	statements  []string // non-prepared Exec calls in order
	stmtErr     map[string]error
	args        [][]any

	nextKey    int64
	failAt     int
	failErr    error
	tag        string
	executions int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		prepared: make(map[string]string),
		stmtErr:  make(map[string]error),
	}
}

type fakeRow struct {
	val any
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return errors.New("fakeRow: want exactly one destination")
	}
	p, ok := dest[0].(*any)
	if !ok {
		return errors.New("fakeRow: destination must be *any")
	}
	*p = r.val
	return nil
}

func (c *fakeConn) Prepare(_ context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	c.prepared[name] = sql
	c.history = append(c.history, sql)
	return &pgconn.StatementDescription{Name: name, SQL: sql}, nil
}

func (c *fakeConn) Deallocate(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prepared, name)
	c.deallocated = append(c.deallocated, name)
	return nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.prepared[sql]; ok {
		if err := c.execute(args); err != nil {
			return pgconn.CommandTag{}, err
		}
		tag := c.tag
		if tag == "" {
			tag = "INSERT 0 1"
		}
		return pgconn.NewCommandTag(tag), nil
	}

	c.statements = append(c.statements, sql)
	for prefix, err := range c.stmtErr {
		if len(sql) >= len(prefix) && sql[:len(prefix)] == prefix {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag(sql), nil
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.prepared[sql]; !ok {
		return fakeRow{err: errors.New("fakeConn: ad-hoc queries not supported")}
	}
	if err := c.execute(args); err != nil {
		return fakeRow{err: err}
	}
	c.nextKey++
	return fakeRow{val: c.nextKey}
}

func (c *fakeConn) execute(args []any) error {
	c.executions++
	if c.failAt > 0 && c.executions == c.failAt {
		return c.failErr
	}
	c.args = append(c.args, args)
	return nil
}

// lastSQL returns the most recently prepared statement text.
func (c *fakeConn) lastSQL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return ""
	}
	return c.history[len(c.history)-1]
}
