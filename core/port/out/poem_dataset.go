package out

import "context"

// Row is a single dataset record keyed by column name.
// A column absent from the map is a missing value.
type Row map[string]string

// Table is a tabular dataset with named columns.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// DatasetSource loads the poem dataset.
type DatasetSource interface {
	Name() string
	Load(ctx context.Context) (*Table, error)
}
