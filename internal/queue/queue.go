// Package queue manages the submission queue: handing jobs to workers and
// moving them through their status lifecycle.
//
// Jobs are created externally with status New. A worker takes one with
// Checkout (process-wide lock) or Claim (row lock, safe across processes),
// marks it InProgress while parsing and finally records a terminal status.
// Status updates only move forward.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/rteval-parser/internal/core"
)

var (
	// ErrInvalidStatus means the requested status cannot be set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition means the job exists but is not in a state the
	// requested status may follow.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", ErrInvalidStatus)

	// ErrJobNotFound means no job has the given submid.
	ErrJobNotFound = errors.New("job not found")

	// ErrDatabase means the queue table could not be read or written.
	ErrDatabase = errors.New("queue database error")
)

// Conn is the subset of a database handle the queue needs.
// *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier adds multi-row reads, used by the inspection helpers.
type Querier interface {
	Conn
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Job is a submission handed to a worker.
type Job struct {
	SubmID   int64
	Filename string
	Status   Status
}

const (
	selectNextSQL = `SELECT submid, COALESCE(filename, '') FROM submissionqueue WHERE status = $1 ORDER BY submid LIMIT 1`

	claimSQL = `UPDATE submissionqueue SET status = $1, assigned = NOW()
 WHERE submid = (SELECT submid FROM submissionqueue WHERE status = $2 ORDER BY submid LIMIT 1 FOR UPDATE SKIP LOCKED)
 RETURNING submid, COALESCE(filename, '')`

	statusSQL = `SELECT status FROM submissionqueue WHERE submid = $1`
)

// Enqueue adds a New job for a report file and returns its submid.
func Enqueue(ctx context.Context, conn Conn, filename string) (int64, error) {
	var submID int64
	err := conn.QueryRow(ctx,
		`INSERT INTO submissionqueue (filename, status) VALUES ($1, $2) RETURNING submid`,
		filename, int(New)).Scan(&submID)
	if err != nil {
		return 0, dbError("enqueue "+filename, err)
	}
	return submID, nil
}

// Checkout hands out the lowest-numbered New job and marks it Assigned.
// lock is held across the read and the mark so two workers sharing it
// never receive the same job. Returns nil, nil when the queue is empty.
func Checkout(ctx context.Context, conn Conn, lock sync.Locker) (*Job, error) {
	lock.Lock()
	defer lock.Unlock()

	job := &Job{}
	err := conn.QueryRow(ctx, selectNextSQL, int(New)).Scan(&job.SubmID, &job.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("select next job", err)
	}

	if err := UpdateStatus(ctx, conn, job.SubmID, Assigned); err != nil {
		return nil, fmt.Errorf("mark job %d assigned: %w", job.SubmID, err)
	}
	job.Status = Assigned
	return job, nil
}

// Claim selects and assigns the lowest-numbered New job in one statement.
// Rows locked by a concurrent claim are skipped, so no in-process lock is
// needed. Returns nil, nil when nothing is claimable.
func Claim(ctx context.Context, conn Conn) (*Job, error) {
	job := &Job{Status: Assigned}
	err := conn.QueryRow(ctx, claimSQL, int(Assigned), int(New)).Scan(&job.SubmID, &job.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("claim job", err)
	}
	return job, nil
}

// UpdateStatus moves a job to status. Assigned also stamps assigned,
// InProgress stamps parsestart and terminal statuses stamp parseend.
// New is never accepted.
func UpdateStatus(ctx context.Context, conn Conn, submID int64, status Status) error {
	if status == New || !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	set := "status = $1"
	switch {
	case status == Assigned:
		set += ", assigned = NOW()"
	case status == InProgress:
		set += ", parsestart = NOW()"
	case status.Terminal():
		set += ", parseend = NOW()"
	}
	sql := "UPDATE submissionqueue SET " + set + " WHERE submid = $2 AND status = ANY($3)"

	tag, err := conn.Exec(ctx, sql, int(status), submID, predecessors(status))
	if err != nil {
		return dbError(fmt.Sprintf("set job %d to %s", submID, status), err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current int
	err = conn.QueryRow(ctx, statusSQL, submID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: submid %d", ErrJobNotFound, submID)
	}
	if err != nil {
		return dbError(fmt.Sprintf("look up job %d", submID), err)
	}
	return fmt.Errorf("%w: job %d is %s, cannot become %s", ErrInvalidTransition, submID, Status(current), status)
}

// Entry is a queue row as shown by the inspection helpers.
type Entry struct {
	SubmID     int64      `json:"submid"`
	Filename   string     `json:"filename"`
	Status     Status     `json:"status"`
	Received   time.Time  `json:"received"`
	Assigned   *time.Time `json:"assigned,omitempty"`
	ParseStart *time.Time `json:"parsestart,omitempty"`
	ParseEnd   *time.Time `json:"parseend,omitempty"`
}

const entryColumns = `submid, COALESCE(filename, ''), status, received, assigned, parsestart, parseend`

// Since returns when the job entered its current phase: parsing start,
// else assignment, else arrival.
func (e Entry) Since() time.Time {
	switch {
	case e.ParseStart != nil:
		return *e.ParseStart
	case e.Assigned != nil:
		return *e.Assigned
	}
	return e.Received
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e      Entry
		status int
	)
	if err := row.Scan(&e.SubmID, &e.Filename, &status, &e.Received, &e.Assigned, &e.ParseStart, &e.ParseEnd); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	return e, nil
}

// Get returns one queue entry.
func Get(ctx context.Context, conn Conn, submID int64) (*Entry, error) {
	e, err := scanEntry(conn.QueryRow(ctx, `SELECT `+entryColumns+` FROM submissionqueue WHERE submid = $1`, submID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: submid %d", ErrJobNotFound, submID)
	}
	if err != nil {
		return nil, dbError(fmt.Sprintf("get job %d", submID), err)
	}
	return &e, nil
}

// Counts returns the number of jobs per status. Statuses with no jobs are absent.
func Counts(ctx context.Context, q Querier) (map[Status]int64, error) {
	rows, err := q.Query(ctx, `SELECT status, count(*) FROM submissionqueue GROUP BY status`)
	if err != nil {
		return nil, dbError("count jobs", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var (
			status int
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, dbError("count jobs", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("count jobs", err)
	}
	return counts, nil
}

// Stuck returns jobs that have been Assigned or InProgress for longer
// than olderThan, ordered by submid. Time is measured from the start of the
// current phase, so a job that waited long in New is not stuck on pickup.
func Stuck(ctx context.Context, q Querier, olderThan time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM submissionqueue
 WHERE status = ANY($1) AND COALESCE(parsestart, assigned, received) < $2
 ORDER BY submid`, []int{int(Assigned), int(InProgress)}, cutoff)
	if err != nil {
		return nil, dbError("list stuck jobs", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, dbError("list stuck jobs", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list stuck jobs", err)
	}
	return entries, nil
}

// dbError tags a driver error with ErrDatabase. Connection failures also
// keep core.ErrConnection so workers know to stop.
func dbError(op string, err error) error {
	classified := core.Classify(err, ErrDatabase)
	if errors.Is(classified, ErrDatabase) {
		return fmt.Errorf("%s: %w", op, classified)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDatabase, classified)
}

// Inspector binds the read-only helpers to a handle, typically a pool.
type Inspector struct {
	Q Querier
}

func (i Inspector) Get(ctx context.Context, submID int64) (*Entry, error) {
	return Get(ctx, i.Q, submID)
}

func (i Inspector) Counts(ctx context.Context) (map[Status]int64, error) {
	return Counts(ctx, i.Q)
}

func (i Inspector) Stuck(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	return Stuck(ctx, i.Q, olderThan)
}
