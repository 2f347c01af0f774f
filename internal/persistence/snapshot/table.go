package snapshot

import (
	"fmt"
	"strings"
)

type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
)

type Column struct {
	Name string
	Type ColumnType
}

// Table is the column layout of one snapshot table. The same layout drives
// DDL, inserts and selects, so the column order of all three always agrees.
type Table struct {
	Name    string
	Columns []Column
}

func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t Table) createSQL(d Dialect, ifNotExists bool) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(t.Name)
	sb.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(d.columnType(c.Type))
	}
	sb.WriteString(")")
	return sb.String()
}

func (t Table) dropSQL() string {
	return "DROP TABLE IF EXISTS " + t.Name
}

// insertSQL uses '?' placeholders; callers Rebind for the store's driver.
func (t Table) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(t.ColumnNames(), ", "), marks)
}

// selectSQL aliases every column to its lower-case name so scanned column
// names do not depend on how the driver reports identifier case.
func (t Table) selectSQL(where string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name + " AS " + strings.ToLower(c.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), t.Name)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}
