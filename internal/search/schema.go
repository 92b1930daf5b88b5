package search

import (
	"fmt"

	"github.com/rpattn/contentql/internal/domain"
)

// ColumnType drives operand coercion and the operators a column accepts.
type ColumnType string

const (
	ColumnID      ColumnType = "id"
	ColumnString  ColumnType = "string"
	ColumnNumber  ColumnType = "number"
	ColumnBoolean ColumnType = "boolean"
	ColumnDate    ColumnType = "date"
	ColumnArray   ColumnType = "array"
)

// Column maps a public property name onto a physical SQL expression.
type Column struct {
	Property   string
	Expr       string
	Type       ColumnType
	Nullable   bool
	Filterable bool
	Sortable   bool
	Searchable bool
	// Join names the entry in EntitySchema.Joins the expression depends on.
	Join string
}

// Join is a named join clause appended to FROM when one of its columns is used.
type Join struct {
	Name   string
	Clause string
}

// EntitySchema is the static allow-list for one entity type. Nothing outside
// Columns can ever be referenced by a generated query.
type EntitySchema struct {
	Entity            domain.EntityType
	Table             string
	Alias             string
	TenantColumn      string
	IDColumn          string
	Joins             []Join
	Columns           []Column
	DefaultProperties []string
	DefaultSort       []domain.SortConfig

	byProperty map[string]int
	joins      map[string]Join
}

// NewEntitySchema validates the declaration and indexes its columns.
func NewEntitySchema(s EntitySchema) (*EntitySchema, error) {
	if s.Entity == "" || s.Entity == domain.EntityTypeAll {
		return nil, fmt.Errorf("schema needs a concrete entity type")
	}
	if s.Table == "" || s.Alias == "" || s.TenantColumn == "" || s.IDColumn == "" {
		return nil, fmt.Errorf("schema %s: table, alias, tenant and id columns are required", s.Entity)
	}

	s.joins = make(map[string]Join, len(s.Joins))
	for _, j := range s.Joins {
		s.joins[j.Name] = j
	}

	s.byProperty = make(map[string]int, len(s.Columns))
	for i, col := range s.Columns {
		if col.Property == "" || col.Expr == "" {
			return nil, fmt.Errorf("schema %s: column %d is missing a property or expression", s.Entity, i)
		}
		if _, dup := s.byProperty[col.Property]; dup {
			return nil, fmt.Errorf("schema %s: duplicate property %q", s.Entity, col.Property)
		}
		if col.Join != "" {
			if _, ok := s.joins[col.Join]; !ok {
				return nil, fmt.Errorf("schema %s: property %q references unknown join %q", s.Entity, col.Property, col.Join)
			}
		}
		// keyset predicates cannot express NULL positions, and joined rows may vanish
		if col.Sortable && (col.Nullable || col.Join != "" || col.Type == ColumnArray) {
			return nil, fmt.Errorf("schema %s: property %q cannot be sortable", s.Entity, col.Property)
		}
		if col.Searchable && col.Type != ColumnString {
			return nil, fmt.Errorf("schema %s: searchable property %q must be a string", s.Entity, col.Property)
		}
		s.byProperty[col.Property] = i
	}

	id, ok := s.Column("id")
	if !ok || id.Type != ColumnID || id.Nullable || !id.Sortable {
		return nil, fmt.Errorf("schema %s: a sortable, non-null id property is required", s.Entity)
	}
	for _, prop := range s.DefaultProperties {
		if _, ok := s.Column(prop); !ok {
			return nil, fmt.Errorf("schema %s: default property %q is not declared", s.Entity, prop)
		}
	}
	if len(s.DefaultSort) == 0 {
		return nil, fmt.Errorf("schema %s: a default sort is required", s.Entity)
	}
	for _, sc := range s.DefaultSort {
		col, ok := s.Column(sc.Property)
		if !ok || !col.Sortable {
			return nil, fmt.Errorf("schema %s: default sort %q is not sortable", s.Entity, sc.Property)
		}
	}

	out := s
	return &out, nil
}

// MustEntitySchema is NewEntitySchema for static declarations.
func MustEntitySchema(s EntitySchema) *EntitySchema {
	schema, err := NewEntitySchema(s)
	if err != nil {
		panic(err)
	}
	return schema
}

// Column looks up a property.
func (s *EntitySchema) Column(property string) (Column, bool) {
	i, ok := s.byProperty[property]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// HasProperty reports whether property is declared.
func (s *EntitySchema) HasProperty(property string) bool {
	_, ok := s.byProperty[property]
	return ok
}

// Properties lists every declared property in declaration order.
func (s *EntitySchema) Properties() []string {
	props := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		props[i] = col.Property
	}
	return props
}

// SearchableColumns returns the columns matched by free-text search.
func (s *EntitySchema) SearchableColumns() []Column {
	var cols []Column
	for _, col := range s.Columns {
		if col.Searchable {
			cols = append(cols, col)
		}
	}
	return cols
}

func (s *EntitySchema) tenantExpr() string {
	return s.Alias + "." + s.TenantColumn
}

func (s *EntitySchema) idColumn() Column {
	col, _ := s.Column("id")
	return col
}

func (s *EntitySchema) join(name string) (Join, bool) {
	j, ok := s.joins[name]
	return j, ok
}
