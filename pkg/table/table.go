package table

import (
	"fmt"
	"sort"
)

// Table is an ordered, in-memory result set. Rows are keyed by column name;
// a row may omit columns, which read back as nil.
type Table struct {
	columns []string
	rows    []map[string]any
}

// New returns an empty table with the given header.
func New(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{columns: cols}
}

// FromRows builds a table from decoded JSON objects. Columns are collected in
// first-seen order; keys inside a single object are sorted so output is stable.
func FromRows(rows []map[string]any) *Table {
	t := &Table{}
	for _, row := range rows {
		t.Append(row)
	}
	return t
}

// FromColumn wraps a list of values as a single-column table, one row per value.
func FromColumn(header string, values []any) *Table {
	t := New(header)
	for _, v := range values {
		t.rows = append(t.rows, map[string]any{header: v})
	}
	return t
}

// FromValues converts an arbitrary decoded JSON value into a table. Objects
// become a single row, arrays of objects become rows, and scalars (or arrays
// of scalars) are wrapped under header. Arrays mixing objects with other
// values are rejected.
func FromValues(header string, v any) (*Table, error) {
	switch val := v.(type) {
	case nil:
		return New(), nil
	case map[string]any:
		return FromRows([]map[string]any{val}), nil
	case []any:
		if len(val) == 0 {
			return New(), nil
		}
		rows := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				rows = append(rows, obj)
			}
		}
		switch len(rows) {
		case len(val):
			return FromRows(rows), nil
		case 0:
			return FromColumn(header, val), nil
		default:
			return nil, fmt.Errorf("array mixes %d objects with %d non-object values", len(rows), len(val)-len(rows))
		}
	case string, bool, float64, int, int64:
		return FromColumn(header, []any{val}), nil
	default:
		return nil, fmt.Errorf("unsupported table value %T", v)
	}
}

// Append adds a row, extending the header with any unseen keys.
func (t *Table) Append(row map[string]any) {
	if row == nil {
		return
	}
	known := make(map[string]struct{}, len(t.columns))
	for _, c := range t.columns {
		known[c] = struct{}{}
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		if _, ok := known[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	t.columns = append(t.columns, keys...)

	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	t.rows = append(t.rows, cp)
}

// Concat appends every row of other to t.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	for _, row := range other.rows {
		t.Append(row)
	}
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns the i-th row. The returned map must not be modified.
func (t *Table) Row(i int) map[string]any {
	if t == nil || i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i]
}

// Rows returns all rows. The returned maps must not be modified.
func (t *Table) Rows() []map[string]any {
	if t == nil {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	copy(out, t.rows)
	return out
}

// Column returns the values of a single column in row order.
func (t *Table) Column(name string) []any {
	if t == nil {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[name]
	}
	return out
}

// Records returns the table as a header row followed by stringified values,
// suitable for CSV or fixed-width rendering.
func (t *Table) Records() [][]string {
	if t == nil {
		return nil
	}
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, t.Columns())
	for _, row := range t.rows {
		rec := make([]string, len(t.columns))
		for i, c := range t.columns {
			rec[i] = formatCell(row[c])
		}
		out = append(out, rec)
	}
	return out
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
