// Package schema holds the allowlist of tables and columns the insertion
// engine may write to.
//
// RecordSets arrive from a transform step and carry table and field names as
// plain strings. Those names end up as SQL identifiers, so every one of them
// is checked against a registered [Table] before any statement is built.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]Table)
	registryMu sync.RWMutex
)

// Table describes one insertable table.
type Table struct {
	Name    string   // Table name as it appears in the database
	Columns []string // Columns a RecordSet may name, including key columns
	Key     string   // Default RETURNING column, empty if the table has none
}

// HasColumn reports whether col is an allowed column of the table.
// Comparison is case-insensitive, matching PostgreSQL's folding of
// unquoted identifiers.
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}

// Register adds a table to the allowlist.
// Panics if a table with the same name is already registered.
func Register(t Table) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := strings.ToLower(t.Name)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("table already registered: %s", t.Name))
	}
	if t.Key != "" && !t.HasColumn(t.Key) {
		t.Columns = append(t.Columns, t.Key)
	}

	registry[key] = t
}

// Lookup returns a registered table by name.
// Returns false if not found.
func Lookup(name string) (Table, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[strings.ToLower(name)]
	return t, ok
}

// All returns all registered tables sorted by name.
func All() []Table {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Table, 0, len(registry))
	for _, t := range registry {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered tables.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Table)
}
