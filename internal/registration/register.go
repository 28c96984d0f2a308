// Package registration turns a parsed rteval report into database rows.
//
// A report is registered in three phases: the system it ran on, the run
// itself and the cyclictest statistics. Each phase asks a Source for the
// RecordSets of its tables and hands them to core.Insert. Keys produced by
// earlier phases are passed to later ones through Params.
package registration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/logging"
	"github.com/JonMunkholm/rteval-parser/internal/metrics"
	"github.com/JonMunkholm/rteval-parser/internal/schema"
)

// Params carries the keys a Source may need to fill into a RecordSet.
type Params struct {
	SysKey         int64
	RterID         int64
	SubmID         int64
	ReportFilename string
}

// Source builds the RecordSet for one table from a report.
type Source interface {
	RecordSet(ctx context.Context, table string, p Params) (*core.RecordSet, error)
}

const systemLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1::text))`

// RegisterSystem stores the system a report came from and returns its
// syskey. A sysid seen before reuses its syskey; only an unseen
// hostname/address pair adds a host binding.
//
// Call it inside a transaction: an advisory lock on the sysid, held until
// commit, keeps two workers from both inserting the same new system.
func RegisterSystem(ctx context.Context, conn core.Conn, src Source) (int64, error) {
	sysRS, err := src.RecordSet(ctx, schema.TableSystems, Params{})
	if err != nil {
		return 0, phaseErr(PhaseSystem, err)
	}
	sysid, err := sysRS.ValueOf("sysid", 0)
	if err != nil {
		return 0, phaseErr(PhaseSystem, err)
	}

	// Serializes first sightings of a sysid across workers until the
	// enclosing transaction ends.
	if _, err := conn.Exec(ctx, systemLockSQL, sysid); err != nil {
		return 0, phaseErr(PhaseSystem, fmt.Errorf("lock sysid: %w", core.Classify(err, core.ErrExec)))
	}

	var matches, syskey int64
	err = conn.QueryRow(ctx,
		`SELECT count(*), COALESCE(min(syskey), 0) FROM systems WHERE sysid = $1`, sysid).
		Scan(&matches, &syskey)
	if err != nil {
		return 0, phaseErr(PhaseSystem, fmt.Errorf("look up sysid: %w", core.Classify(err, core.ErrExec)))
	}

	switch {
	case matches == 0:
		keys, err := insert(ctx, conn, sysRS)
		if err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		if syskey, err = singleKey(schema.TableSystems, keys); err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		hostRS, err := src.RecordSet(ctx, schema.TableSystemsHostname, Params{SysKey: syskey})
		if err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		if _, err := insert(ctx, conn, hostRS); err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		logging.FromContext(ctx).Info("registered new system", "syskey", syskey, "sysid", sysid)

	case matches == 1:
		hostRS, err := src.RecordSet(ctx, schema.TableSystemsHostname, Params{SysKey: syskey})
		if err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		bound, err := hostBound(ctx, conn, syskey, hostRS)
		if err != nil {
			return 0, phaseErr(PhaseSystem, err)
		}
		if !bound {
			if _, err := insert(ctx, conn, hostRS); err != nil {
				return 0, phaseErr(PhaseSystem, err)
			}
			logging.FromContext(ctx).Info("added host binding", "syskey", syskey)
		}

	default:
		err := fmt.Errorf("%w: sysid %s is registered %d times", core.ErrConsistencyViolation, sysid, matches)
		logging.FromContext(ctx).Error("multiple systems registered for one sysid",
			"sysid", sysid, "matches", matches, "critical", true)
		return 0, phaseErr(PhaseSystem, err)
	}

	return syskey, nil
}

// hostBound reports whether the hostname/address pair in hostRS is already
// bound to syskey.
func hostBound(ctx context.Context, conn core.Conn, syskey int64, hostRS *core.RecordSet) (bool, error) {
	hostname, err := hostRS.ValueOf("hostname", 0)
	if err != nil {
		return false, err
	}
	ipaddr, err := hostRS.ValueOf("ipaddr", 0)
	if err != nil {
		return false, err
	}

	var n int64
	err = conn.QueryRow(ctx,
		`SELECT count(*) FROM systems_hostname WHERE syskey = $1 AND hostname = $2 AND ipaddr IS NOT DISTINCT FROM $3`,
		syskey, hostname, ipaddr).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up host binding: %w", core.Classify(err, core.ErrExec))
	}
	return n > 0, nil
}

// RegisterRun stores the run and its details and returns the new rterid.
func RegisterRun(ctx context.Context, conn core.Conn, src Source, syskey, submID int64, reportFilename string) (int64, error) {
	runRS, err := src.RecordSet(ctx, schema.TableRtevalRuns, Params{
		SysKey:         syskey,
		SubmID:         submID,
		ReportFilename: reportFilename,
	})
	if err != nil {
		return 0, phaseErr(PhaseRun, err)
	}
	keys, err := insert(ctx, conn, runRS)
	if err != nil {
		return 0, phaseErr(PhaseRun, err)
	}
	rterid, err := singleKey(schema.TableRtevalRuns, keys)
	if err != nil {
		return 0, phaseErr(PhaseRun, err)
	}

	detailsRS, err := src.RecordSet(ctx, schema.TableRtevalRunsDetails, Params{RterID: rterid})
	if err != nil {
		return 0, phaseErr(PhaseRun, err)
	}
	keys, err = insert(ctx, conn, detailsRS)
	if err != nil {
		return 0, phaseErr(PhaseRun, err)
	}
	if len(keys) != 1 {
		return 0, phaseErr(PhaseRun, fmt.Errorf("%w: %s: %d rows, want 1",
			ErrUnexpectedResult, schema.TableRtevalRunsDetails, len(keys)))
	}
	return rterid, nil
}

// RegisterStatistics stores the cyclictest summary and raw samples of a run.
// Each table must receive at least one row.
func RegisterStatistics(ctx context.Context, conn core.Conn, src Source, rterid int64) error {
	for _, table := range []string{schema.TableCyclicStatistics, schema.TableCyclicRawdata} {
		rs, err := src.RecordSet(ctx, table, Params{RterID: rterid})
		if err != nil {
			return phaseErr(PhaseStatistics, err)
		}
		keys, err := insert(ctx, conn, rs)
		if err != nil {
			return phaseErr(PhaseStatistics, err)
		}
		if len(keys) < 1 {
			return phaseErr(PhaseStatistics, fmt.Errorf("%w: %s: no rows", ErrUnexpectedResult, table))
		}
	}
	return nil
}

// insert runs core.Insert and records its outcome.
func insert(ctx context.Context, conn core.Conn, rs *core.RecordSet) ([]core.KeyValue, error) {
	start := time.Now()
	keys, err := core.Insert(ctx, conn, rs)
	code := ""
	if err != nil {
		code = core.Code(err)
		logging.FromContext(ctx).Warn("insert failed", "table", rs.Table, "code", code, "error", err)
	}
	metrics.RecordInsert(rs.Table, len(keys), time.Since(start), code)
	return keys, err
}

// singleKey extracts the generated key of a one-row insert.
func singleKey(table string, keys []core.KeyValue) (int64, error) {
	if len(keys) != 1 {
		return 0, fmt.Errorf("%w: %s: %d rows, want 1", ErrUnexpectedResult, table, len(keys))
	}
	key, err := strconv.ParseInt(keys[0].Value, 10, 64)
	if err != nil || key < 1 {
		return 0, fmt.Errorf("%w: %s: invalid key %s=%q", ErrUnexpectedResult, table, keys[0].Name, keys[0].Value)
	}
	return key, nil
}
