package db

import (
	"strconv"
	"strings"
)

// DialectName is the normalised name of a SQL dialect.
type DialectName string

const (
	DialectPostgres DialectName = "postgres"
	DialectSQLite   DialectName = "sqlite"
)

// Dialect captures the few syntax differences the search compiler needs to
// know about. Queries are always written with ? placeholders and rebound.
type Dialect struct {
	name DialectName
}

// NewDialect builds a dialect from a driver name (case-insensitive).
func NewDialect(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: DialectSQLite}
	default:
		return Dialect{name: DialectPostgres}
	}
}

// Name returns the dialect name.
func (d Dialect) Name() DialectName {
	return d.name
}

// Rebind converts ? placeholders into the dialect's form. Generated SQL never
// contains ? inside string literals, so a plain scan is enough.
func (d Dialect) Rebind(query string) string {
	if d.name != DialectPostgres || query == "" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// ArrayElements returns a FROM item expanding a JSON array column into rows
// and the expression naming one element as text.
func (d Dialect) ArrayElements(expr string) (from string, value string) {
	if d.name == DialectSQLite {
		return "json_each(COALESCE(" + expr + ", '[]')) AS elem", "elem.value"
	}
	return "jsonb_array_elements_text(COALESCE(" + expr + ", '[]'::jsonb)) AS elem(value)", "elem.value"
}

// SortKey returns expr as used in ORDER BY and keyset comparisons. Text keys
// compare byte-wise on every dialect; SQLite's default collation already does.
func (d Dialect) SortKey(expr string, text bool) string {
	if text && d.name == DialectPostgres {
		return expr + ` COLLATE "C"`
	}
	return expr
}
