package task

import "fmt"

// Table is the column-oriented tabular payload exchanged by the built-in
// actors. It is intentionally minimal: the framework core never computes on
// it, only actors do.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// NewTable builds a table after validating the row shape against the header.
func NewTable(columns []string, rows [][]float64) (Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return Table{}, fmt.Errorf("task: row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return Table{Columns: columns, Rows: rows}, nil
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Select returns a table containing only the rows at the given indices.
func (t Table) Select(indices []int) Table {
	rows := make([][]float64, 0, len(indices))
	for _, i := range indices {
		rows = append(rows, t.Rows[i])
	}
	return Table{Columns: t.Columns, Rows: rows}
}

// String renders the table as a compact header/rows listing.
func (t Table) String() string {
	s := fmt.Sprint(t.Columns)
	for _, row := range t.Rows {
		s += "\n" + fmt.Sprint(row)
	}
	return s
}

// AsTable coerces an opaque actor argument into a Table.
func AsTable(v any) (Table, error) {
	t, ok := v.(Table)
	if !ok {
		return Table{}, fmt.Errorf("task: expected Table payload, got %T", v)
	}
	return t, nil
}
