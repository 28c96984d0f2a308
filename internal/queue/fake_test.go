package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeJob struct {
	filename   string
	status     Status
	assigned   bool
	parseStart bool
	parseEnd   bool
}

// fakeQueue emulates the submissionqueue table for the statements this
// package issues. Each call is atomic on its own; nothing spans calls.
type fakeQueue struct {
	mu      sync.Mutex
	jobs    map[int64]*fakeJob
	execErr error
	selects int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[int64]*fakeJob)}
}

func (q *fakeQueue) add(submID int64, filename string, status Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[submID] = &fakeJob{filename: filename, status: status}
}

func (q *fakeQueue) get(submID int64) fakeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.jobs[submID]
}

func (q *fakeQueue) lowest(status Status) (int64, bool) {
	var ids []int64
	for id, j := range q.jobs {
		if j.status == status {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	return slices.Min(ids), true
}

type row struct {
	vals []any
	err  error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("fake row: %d destinations for %d values", len(dest), len(r.vals))
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		default:
			return fmt.Errorf("fake row: unsupported destination %T", d)
		}
	}
	return nil
}

func (q *fakeQueue) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch sql {
	case selectNextSQL:
		q.selects++
		id, ok := q.lowest(Status(args[0].(int)))
		if !ok {
			return row{err: pgx.ErrNoRows}
		}
		return row{vals: []any{id, q.jobs[id].filename}}
	case claimSQL:
		id, ok := q.lowest(Status(args[1].(int)))
		if !ok {
			return row{err: pgx.ErrNoRows}
		}
		q.jobs[id].status = Status(args[0].(int))
		q.jobs[id].assigned = strings.Contains(sql, "assigned = NOW()")
		return row{vals: []any{id, q.jobs[id].filename}}
	case statusSQL:
		j, ok := q.jobs[args[0].(int64)]
		if !ok {
			return row{err: pgx.ErrNoRows}
		}
		return row{vals: []any{int(j.status)}}
	}
	return row{err: errors.New("fake queue: unexpected query")}
}

func (q *fakeQueue) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	// Widen the window between a checkout's read and its mark.
	runtime.Gosched()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.execErr != nil {
		return pgconn.CommandTag{}, q.execErr
	}
	if !strings.HasPrefix(sql, "UPDATE submissionqueue SET status = $1") {
		return pgconn.CommandTag{}, errors.New("fake queue: unexpected statement")
	}
	status := Status(args[0].(int))
	j, ok := q.jobs[args[1].(int64)]
	if !ok || !slices.Contains(args[2].([]int), int(j.status)) {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	j.status = status
	j.assigned = j.assigned || strings.Contains(sql, "assigned = NOW()")
	j.parseStart = j.parseStart || strings.Contains(sql, "parsestart = NOW()")
	j.parseEnd = j.parseEnd || strings.Contains(sql, "parseend = NOW()")
	return pgconn.NewCommandTag("UPDATE 1"), nil
}
