// Package report reads parsed rteval reports in the sqldata bundle form:
//
//	<rtevalsqldata>
//	  <sqldata table="systems" key="syskey">...</sqldata>
//	  <sqldata table="systems_hostname">...</sqldata>
//	  ...
//	</rtevalsqldata>
//
// Values may carry a param attribute (syskey, rterid, submid or
// report_filename) whose content is filled in when the RecordSet for its
// table is built, once the earlier registration phases produced the keys.
package report

import (
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strconv"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/registration"
)

// Param names understood in value templates.
const (
	ParamSysKey         = "syskey"
	ParamRterID         = "rterid"
	ParamSubmID         = "submid"
	ParamReportFilename = "report_filename"
)

type bundle struct {
	XMLName xml.Name       `xml:"rtevalsqldata"`
	Tables  []core.SQLData `xml:"sqldata"`
}

// Report holds the per-table sqldata documents of one submission.
type Report struct {
	tables map[string]*core.SQLData
}

// Decode reads an sqldata bundle. Syntax errors, empty bundles and tables
// listed twice are malformed input.
func Decode(r io.Reader) (*Report, error) {
	var b bundle
	if err := xml.NewDecoder(r).Decode(&b); err != nil {
		return nil, core.Malformed("decode report: %v", err)
	}
	if len(b.Tables) == 0 {
		return nil, core.Malformed("report contains no sqldata")
	}

	rep := &Report{tables: make(map[string]*core.SQLData, len(b.Tables))}
	for i := range b.Tables {
		d := &b.Tables[i]
		if _, dup := rep.tables[d.Table]; dup {
			return nil, core.Malformed("report lists table %q twice", d.Table)
		}
		rep.tables[d.Table] = d
	}
	return rep, nil
}

// Tables returns the tables the report carries data for, sorted.
func (r *Report) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordSet builds the RecordSet for table, substituting params from p.
// A param whose key is not known yet (zero) is malformed input.
func (r *Report) RecordSet(_ context.Context, table string, p registration.Params) (*core.RecordSet, error) {
	d, ok := r.tables[table]
	if !ok {
		return nil, core.Malformed("report has no data for table %q", table)
	}
	return d.RecordSet(paramFunc(p))
}

func paramFunc(p registration.Params) core.ParamFunc {
	return func(name string) (string, bool) {
		switch name {
		case ParamSysKey:
			return formatKey(p.SysKey)
		case ParamRterID:
			return formatKey(p.RterID)
		case ParamSubmID:
			return formatKey(p.SubmID)
		case ParamReportFilename:
			return p.ReportFilename, p.ReportFilename != ""
		}
		return "", false
	}
}

func formatKey(k int64) (string, bool) {
	if k <= 0 {
		return "", false
	}
	return strconv.FormatInt(k, 10), true
}
