package dwd

import (
	"database/sql"

	"github.com/ujung/wetter/internal/models"
)

// Kind is the inferred type of a table column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "text"
	}
}

func parseKind(s string) (Kind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "float":
		return KindFloat, true
	case "text":
		return KindText, true
	}
	return KindText, false
}

type Column struct {
	Name string
	Kind Kind
}

// Cell holds one value. Numeric columns use Num, text columns use Text; an
// invalid value is a missing measurement.
type Cell struct {
	Num  sql.NullFloat64
	Text sql.NullString
}

func (c Cell) Valid() bool {
	return c.Num.Valid || c.Text.Valid
}

// Table is a cleaned daily record table of one station. A table without
// columns is the legal "no data" table.
type Table struct {
	Columns []Column
	Rows    [][]Cell
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) Empty() bool {
	return t.Len() == 0
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Date returns the YYYYMMDD date of row i, or "" when the table has no date
// column.
func (t *Table) Date(i int) string {
	col := t.ColumnIndex(models.DateField)
	if col < 0 {
		return ""
	}
	return t.Rows[i][col].Text.String
}

// Equal reports whether both tables have the same columns, kinds, rows and
// missing markers.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t.Len() == 0 && o.Len() == 0
	}
	if t.Len() != o.Len() || len(t.Columns) != len(o.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		if len(t.Rows[i]) != len(o.Rows[i]) {
			return false
		}
		for j := range t.Rows[i] {
			if t.Rows[i][j] != o.Rows[i][j] {
				return false
			}
		}
	}
	return true
}
