package registration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

var insertRe = regexp.MustCompile(`^INSERT INTO "(\w+)" \(([^)]*)\) VALUES`)

// fakeDB emulates just enough of the rteval schema for the statements the
// registration phases and the queue issue. ROLLBACK restores the rows as
// they were at BEGIN.
type fakeDB struct {
	prepared map[string]string
	rows     map[string][]map[string]any
	keys     map[string]int64
	snapshot map[string][]map[string]any

	failInsert map[string]error // table -> error for its inserts
	failStmt   map[string]error // BEGIN/COMMIT/ROLLBACK -> error
	statuses   map[int64]queue.Status
	statements []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		prepared:   make(map[string]string),
		rows:       make(map[string][]map[string]any),
		keys:       make(map[string]int64),
		failInsert: make(map[string]error),
		failStmt:   make(map[string]error),
		statuses:   make(map[int64]queue.Status),
	}
}

var keyColumns = map[string]string{
	"systems":           "syskey",
	"rtevalruns":        "rterid",
	"cyclic_statistics": "cstid",
}

func (db *fakeDB) count(table string) int { return len(db.rows[table]) }

func (db *fakeDB) Prepare(_ context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	db.prepared[name] = sql
	return &pgconn.StatementDescription{Name: name, SQL: sql}, nil
}

func (db *fakeDB) Deallocate(_ context.Context, name string) error {
	delete(db.prepared, name)
	return nil
}

// insert stores one row and returns its generated key, if the table has one.
func (db *fakeDB) insert(sql string, args []any) (int64, error) {
	m := insertRe.FindStringSubmatch(sql)
	if m == nil {
		return 0, fmt.Errorf("fake db: cannot parse %q", sql)
	}
	table := m[1]
	if err := db.failInsert[table]; err != nil {
		return 0, err
	}
	row := make(map[string]any)
	for i, col := range strings.Split(m[2], ",") {
		row[strings.Trim(col, `"`)] = args[i]
	}
	var key int64
	if kc, ok := keyColumns[table]; ok {
		db.keys[table]++
		key = db.keys[table]
		row[kc] = strconv.FormatInt(key, 10)
	}
	db.rows[table] = append(db.rows[table], row)
	return key, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if stmt, ok := db.prepared[sql]; ok {
		if _, err := db.insert(stmt, args); err != nil {
			return pgconn.CommandTag{}, err
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}

	db.statements = append(db.statements, sql)
	if err := db.failStmt[sql]; err != nil {
		return pgconn.CommandTag{}, err
	}
	switch {
	case sql == "BEGIN":
		db.snapshot = make(map[string][]map[string]any)
		for t, rows := range db.rows {
			db.snapshot[t] = slices.Clone(rows)
		}
	case sql == "ROLLBACK":
		db.rows = db.snapshot
		db.snapshot = nil
	case sql == "COMMIT":
		db.snapshot = nil
	case strings.HasPrefix(sql, "UPDATE submissionqueue"):
		submID := args[1].(int64)
		cur, ok := db.statuses[submID]
		if !ok || !slices.Contains(args[2].([]int), int(cur)) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		db.statuses[submID] = queue.Status(args[0].(int))
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.NewCommandTag(sql), nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *any:
			*p = r.vals[i]
		case *int64:
			*p = r.vals[i].(int64)
		case *int:
			*p = r.vals[i].(int)
		default:
			return fmt.Errorf("fake row: unsupported destination %T", d)
		}
	}
	return nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if stmt, ok := db.prepared[sql]; ok {
		key, err := db.insert(stmt, args)
		if err != nil {
			return fakeRow{err: err}
		}
		return fakeRow{vals: []any{key}}
	}

	switch {
	case strings.Contains(sql, "FROM systems WHERE sysid"):
		var n, minKey int64
		for _, row := range db.rows["systems"] {
			if row["sysid"] == args[0] {
				k, _ := strconv.ParseInt(row["syskey"].(string), 10, 64)
				if n == 0 || k < minKey {
					minKey = k
				}
				n++
			}
		}
		return fakeRow{vals: []any{n, minKey}}
	case strings.Contains(sql, "FROM systems_hostname"):
		var n int64
		for _, row := range db.rows["systems_hostname"] {
			if row["syskey"] == fmt.Sprint(args[0]) && row["hostname"] == args[1] && row["ipaddr"] == args[2] {
				n++
			}
		}
		return fakeRow{vals: []any{n}}
	case strings.HasPrefix(sql, "SELECT status FROM submissionqueue"):
		s, ok := db.statuses[args[0].(int64)]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{int(s)}}
	}
	return fakeRow{err: errors.New("fake db: unexpected query " + sql)}
}

// fakeReport is a Source serving fixed rteval data. Params are substituted
// the way a report would.
type fakeReport struct {
	sysid    string
	hostname string
	ipaddr   string
	samples  int
	broken   map[string]error
	asked    []string
	lastRun  Params
}

func newFakeReport() *fakeReport {
	return &fakeReport{sysid: "node-a-dmi", hostname: "node1", ipaddr: "10.0.0.1", samples: 3, broken: map[string]error{}}
}

func recordSet(table, key string, cols []string, rows ...[]string) *core.RecordSet {
	rs := &core.RecordSet{Table: table, Key: key}
	for i, c := range cols {
		rs.Fields = append(rs.Fields, core.Field{ID: i, Name: c})
	}
	for _, r := range rows {
		var rec core.Record
		for i, v := range r {
			rec.Values = append(rec.Values, core.Value{FieldID: i, Content: v})
		}
		rs.Records = append(rs.Records, rec)
	}
	return rs
}

func (r *fakeReport) RecordSet(_ context.Context, table string, p Params) (*core.RecordSet, error) {
	r.asked = append(r.asked, table)
	if err := r.broken[table]; err != nil {
		return nil, err
	}
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }

	switch table {
	case "systems":
		return recordSet(table, "syskey", []string{"sysid", "dmidata"}, []string{r.sysid, "<dmi/>"}), nil
	case "systems_hostname":
		return recordSet(table, "", []string{"syskey", "hostname", "ipaddr"},
			[]string{itoa(p.SysKey), r.hostname, r.ipaddr}), nil
	case "rtevalruns":
		r.lastRun = p
		return recordSet(table, "rterid",
			[]string{"submid", "syskey", "kernel_ver", "kernel_rt", "arch", "run_start", "run_duration", "load_avg", "version", "report_filename"},
			[]string{itoa(p.SubmID), itoa(p.SysKey), "6.6.0-rt", "true", "x86_64", "2024-05-01 10:00:00", "3600", "2.5", "3.7", p.ReportFilename}), nil
	case "rtevalruns_details":
		return recordSet(table, "", []string{"rterid", "annotation", "num_cpu_cores", "num_cpu_sockets", "xmldata"},
			[]string{itoa(p.RterID), "nightly", "8", "1", "<rteval/>"}), nil
	case "cyclic_statistics":
		return recordSet(table, "cstid", []string{"rterid", "coreid", "num_samples", "lat_min", "lat_max", "lat_mean", "mode", "range", "median", "stddev"},
			[]string{itoa(p.RterID), "0", "100", "1", "9", "3", "3", "8", "3", "1.2"}), nil
	case "cyclic_rawdata":
		var rows [][]string
		for i := 0; i < r.samples; i++ {
			rows = append(rows, []string{itoa(p.RterID), "0", strconv.Itoa(i), "4"})
		}
		return recordSet(table, "", []string{"rterid", "cpu_num", "sampleseq", "latency"}, rows...), nil
	}
	return nil, fmt.Errorf("fake report: no data for %s", table)
}

func snapshotTables(db *fakeDB) map[string]int {
	out := make(map[string]int)
	for _, t := range slices.Sorted(maps.Keys(db.rows)) {
		out[t] = len(db.rows[t])
	}
	return out
}
