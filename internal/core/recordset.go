package core

import "strings"

// Field is one column of a RecordSet. IDs are unique within the set and
// link record values to the field.
type Field struct {
	ID   int
	Name string
}

// Value is the content for one field of one record.
type Value struct {
	FieldID   int
	Kind      Kind   // KindPlain when empty
	Algorithm string // Digest name for KindHash
	Content   string
}

// Record is one row to insert. Values may be in any order.
type Record struct {
	Values []Value
}

// RecordSet describes rows to insert into one table.
type RecordSet struct {
	Table   string
	Key     string // Optional RETURNING column
	Fields  []Field
	Records []Record
}

// Validate checks the structural invariants of the set: a table name, at
// least one field, unique non-negative field ids with names, and records
// whose values cover exactly the declared fields.
func (rs *RecordSet) Validate() error {
	if rs == nil {
		return Malformed("nil record set")
	}
	if strings.TrimSpace(rs.Table) == "" {
		return Malformed("missing table name")
	}
	if len(rs.Fields) == 0 {
		return Malformed("%s: no fields declared", rs.Table)
	}

	seen := make(map[int]bool, len(rs.Fields))
	for _, f := range rs.Fields {
		if f.ID < 0 {
			return Malformed("%s: negative field id %d", rs.Table, f.ID)
		}
		if seen[f.ID] {
			return Malformed("%s: duplicate field id %d", rs.Table, f.ID)
		}
		if strings.TrimSpace(f.Name) == "" {
			return Malformed("%s: field %d has no name", rs.Table, f.ID)
		}
		seen[f.ID] = true
	}

	for i := range rs.Records {
		if _, err := rs.byField(i); err != nil {
			return err
		}
	}
	return nil
}

// FieldID returns the id of the named field.
func (rs *RecordSet) FieldID(name string) (int, bool) {
	for _, f := range rs.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.ID, true
		}
	}
	return 0, false
}

// ValueOf returns the resolved value of a named field in record idx.
// Hash and blob transforms are applied, so the result equals what Insert
// would bind for that field.
func (rs *RecordSet) ValueOf(name string, idx int) (string, error) {
	if idx < 0 || idx >= len(rs.Records) {
		return "", Malformed("%s: record %d out of range", rs.Table, idx)
	}
	id, ok := rs.FieldID(name)
	if !ok {
		return "", Malformed("%s: no field %q", rs.Table, name)
	}
	for _, v := range rs.Records[idx].Values {
		if v.FieldID == id {
			return v.Resolve()
		}
	}
	return "", Malformed("%s: record %d has no value for %q", rs.Table, idx+1, name)
}

// Columns returns the field names in declared order.
func (rs *RecordSet) Columns() []string {
	cols := make([]string, len(rs.Fields))
	for i, f := range rs.Fields {
		cols[i] = f.Name
	}
	return cols
}

// byField indexes the values of record idx by field id and checks that
// every declared field is present exactly once.
func (rs *RecordSet) byField(idx int) (map[int]Value, error) {
	rec := rs.Records[idx]
	values := make(map[int]Value, len(rec.Values))
	for _, v := range rec.Values {
		if _, ok := rs.fieldIndex(v.FieldID); !ok {
			return nil, Malformed("%s: record %d: unknown field id %d", rs.Table, idx+1, v.FieldID)
		}
		if _, dup := values[v.FieldID]; dup {
			return nil, Malformed("%s: record %d: duplicate value for field id %d", rs.Table, idx+1, v.FieldID)
		}
		values[v.FieldID] = v
	}
	for _, f := range rs.Fields {
		if _, ok := values[f.ID]; !ok {
			return nil, Malformed("%s: record %d: missing value for field %q", rs.Table, idx+1, f.Name)
		}
	}
	return values, nil
}

// args resolves record idx into statement parameters in field order.
func (rs *RecordSet) args(idx int) ([]any, error) {
	values, err := rs.byField(idx)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(rs.Fields))
	for i, f := range rs.Fields {
		s, err := values[f.ID].Resolve()
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

func (rs *RecordSet) fieldIndex(id int) (int, bool) {
	for i, f := range rs.Fields {
		if f.ID == id {
			return i, true
		}
	}
	return 0, false
}
