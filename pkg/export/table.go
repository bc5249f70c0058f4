package export

import "fmt"

// Table is an ordered tabular document. Row cells line up with Headers.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// AddRow appends a row, padding or truncating it to the header width.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

func (t Table) validate(kind string) error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("%s row %d has %d cells, want %d", kind, i, len(row), len(t.Headers))
		}
	}
	return nil
}
