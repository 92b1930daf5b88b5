package search

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rpattn/contentql/internal/db"
)

// fragment is a SQL snippet with ? placeholders and its arguments in order.
type fragment struct {
	sql  string
	args []any
}

type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) add(f fragment) string {
	b.args = append(b.args, f.args...)
	return f.sql
}

// compiledQuery is the SQL for one plan plus what is needed to read its rows.
type compiledQuery struct {
	sql      string
	args     []any
	selected []Column
	// keyIndex maps each plan sort onto its position in selected.
	keyIndex []int
}

// buildQuery renders p as a single tenant-scoped keyset query. The SQL uses ?
// placeholders; callers rebind it for the executor's dialect.
func buildQuery(d db.Dialect, tenant uuid.UUID, p *plan) compiledQuery {
	s := p.schema
	b := &sqlBuilder{}

	selected := append([]Column(nil), p.output...)
	position := make(map[string]int, len(selected))
	for i, col := range selected {
		position[col.Property] = i
	}
	keyIndex := make([]int, len(p.sorts))
	for i, sc := range p.sorts {
		idx, ok := position[sc.column.Property]
		if !ok {
			idx = len(selected)
			position[sc.column.Property] = idx
			selected = append(selected, sc.column)
		}
		keyIndex[i] = idx
	}

	exprs := make([]string, len(selected))
	for i, col := range selected {
		exprs[i] = col.Expr
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(exprs, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(s.Table + " " + s.Alias)
	for _, clause := range joinClauses(p, selected) {
		sql.WriteString(" ")
		sql.WriteString(clause)
	}

	// the tenant predicate comes first and every other condition is
	// parenthesised beneath it
	conditions := []string{b.add(fragment{s.tenantExpr() + " = ?", []any{tenant}})}
	for _, bf := range p.constraints {
		conditions = append(conditions, "("+b.add(compileFilter(d, bf))+")")
	}
	for _, group := range p.groups {
		if len(group.filters) == 0 {
			continue
		}
		parts := make([]string, len(group.filters))
		for i, bf := range group.filters {
			parts[i] = "(" + b.add(compileFilter(d, bf)) + ")"
		}
		conditions = append(conditions, "("+strings.Join(parts, " "+string(group.op)+" ")+")")
	}
	if p.search != "" && len(p.searchColumns) > 0 {
		pattern := likePattern("%", p.search, "%")
		parts := make([]string, len(p.searchColumns))
		for i, col := range p.searchColumns {
			parts[i] = b.add(fragment{"LOWER(" + col.Expr + ") LIKE ? ESCAPE '\\'", []any{pattern}})
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}
	if len(p.after) > 0 {
		conditions = append(conditions, "("+b.add(keysetPredicate(d, p.sorts, p.after))+")")
	}
	sql.WriteString(" WHERE ")
	sql.WriteString(strings.Join(conditions, " AND "))

	orderings := make([]string, len(p.sorts))
	for i, sc := range p.sorts {
		orderings[i] = sortKey(d, sc) + " " + sqlDirection(sc.desc)
	}
	sql.WriteString(" ORDER BY ")
	sql.WriteString(strings.Join(orderings, ", "))
	sql.WriteString(" LIMIT ")
	sql.WriteString(strconv.Itoa(p.limit + 1))

	return compiledQuery{sql: sql.String(), args: b.args, selected: selected, keyIndex: keyIndex}
}

// keysetPredicate selects rows strictly after keys in sort order:
// (k1 > v1) OR (k1 = v1 AND k2 > v2) OR ... with > flipped for descending keys.
func keysetPredicate(d db.Dialect, sorts []boundSort, keys []any) fragment {
	var args []any
	branches := make([]string, len(sorts))
	for i := range sorts {
		terms := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			terms = append(terms, sortKey(d, sorts[j])+" = ?")
			args = append(args, keys[j])
		}
		op := " > ?"
		if sorts[i].desc {
			op = " < ?"
		}
		terms = append(terms, sortKey(d, sorts[i])+op)
		args = append(args, keys[i])
		branches[i] = "(" + strings.Join(terms, " AND ") + ")"
	}
	return fragment{strings.Join(branches, " OR "), args}
}

// joinClauses returns the joins needed by any referenced column, in schema order.
func joinClauses(p *plan, selected []Column) []string {
	needed := make(map[string]bool)
	mark := func(col Column) {
		if col.Join != "" {
			needed[col.Join] = true
		}
	}
	for _, col := range selected {
		mark(col)
	}
	for _, bf := range p.constraints {
		mark(bf.column)
	}
	for _, g := range p.groups {
		for _, bf := range g.filters {
			mark(bf.column)
		}
	}
	for _, col := range p.searchColumns {
		mark(col)
	}

	var clauses []string
	for _, j := range p.schema.Joins {
		if needed[j.Name] {
			clauses = append(clauses, j.Clause)
		}
	}
	return clauses
}

func sortKey(d db.Dialect, sc boundSort) string {
	return d.SortKey(sc.column.Expr, sc.column.Type == ColumnString)
}

func sqlDirection(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}
