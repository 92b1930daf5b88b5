package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/domain"
)

// Target identifies who a search runs for. Both values come from the caller's
// authorization layer; searchers only enforce them.
type Target struct {
	Tenant uuid.UUID
	Scope  *Scope
}

// Hit is one result row with its keyset tuple and a cursor resuming after it.
type Hit struct {
	Record domain.Record
	Keys   []any
	Cursor string
}

// Page is one entity searcher's answer.
type Page struct {
	Entity     domain.EntityType
	Hits       []Hit
	NextCursor string
}

// Records returns the hit records in order.
func (p Page) Records() []domain.Record {
	records := make([]domain.Record, len(p.Hits))
	for i, h := range p.Hits {
		records[i] = h.Record
	}
	return records
}

// EntitySearcher is the contract every searchable entity type implements.
type EntitySearcher interface {
	Entity() domain.EntityType
	Schema() *EntitySchema
	// Validate checks q for target without touching storage.
	Validate(target Target, q Query) error
	Search(ctx context.Context, target Target, q Query) (Page, error)
}

// SQLSearcher binds an entity schema to a storage executor.
type SQLSearcher struct {
	schema *EntitySchema
	exec   db.Executor
}

// NewSQLSearcher creates a searcher for schema.
func NewSQLSearcher(schema *EntitySchema, exec db.Executor) *SQLSearcher {
	return &SQLSearcher{schema: schema, exec: exec}
}

func (s *SQLSearcher) Entity() domain.EntityType { return s.schema.Entity }

func (s *SQLSearcher) Schema() *EntitySchema { return s.schema }

func (s *SQLSearcher) Validate(target Target, q Query) error {
	_, err := s.prepare(target, q)
	return err
}

func (s *SQLSearcher) prepare(target Target, q Query) (*plan, error) {
	if target.Tenant == uuid.Nil {
		return nil, NewValidationError("tenant", "is required")
	}
	if !target.Scope.AllowsEntity(s.schema.Entity) {
		return nil, &ScopeViolation{Entity: s.schema.Entity}
	}
	return s.schema.plan(q, target.Scope)
}

// Search runs one keyset page of q for the target tenant.
func (s *SQLSearcher) Search(ctx context.Context, target Target, q Query) (Page, error) {
	entity := s.schema.Entity
	p, err := s.prepare(target, q)
	if err != nil {
		return Page{Entity: entity}, err
	}

	dialect := s.exec.Dialect()
	cq := buildQuery(dialect, target.Tenant, p)
	rows, err := s.exec.Query(ctx, dialect.Rebind(cq.sql), cq.args...)
	if err != nil {
		return Page{Entity: entity}, NewExecutionError(entity, err)
	}

	n := min(len(rows), p.limit)
	page := Page{Entity: entity, Hits: make([]Hit, 0, n)}
	for _, row := range rows[:n] {
		hit, err := s.readHit(p, cq, row)
		if err != nil {
			return Page{Entity: entity}, NewExecutionError(entity, err)
		}
		page.Hits = append(page.Hits, hit)
	}
	if len(rows) > p.limit && n > 0 {
		page.NextCursor = page.Hits[n-1].Cursor
	}
	return page, nil
}

func (s *SQLSearcher) readHit(p *plan, cq compiledQuery, row []any) (Hit, error) {
	if len(row) != len(cq.selected) {
		return Hit{}, fmt.Errorf("row has %d values, expected %d", len(row), len(cq.selected))
	}
	record := make(domain.Record, len(p.output))
	for i, col := range p.output {
		v, err := normalizeValue(col, row[i])
		if err != nil {
			return Hit{}, err
		}
		record[col.Property] = v
	}
	keys := make([]any, len(cq.keyIndex))
	for i, idx := range cq.keyIndex {
		v, err := normalizeValue(cq.selected[idx], row[idx])
		if err != nil {
			return Hit{}, err
		}
		keys[i] = v
	}
	return Hit{Record: record, Keys: keys, Cursor: encodeEntityCursor(s.schema.Entity, p.sorts, keys)}, nil
}

// normalizeValue maps driver values onto one Go type per column type, so
// results look the same whichever executor produced them.
func normalizeValue(col Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch col.Type {
	case ColumnID:
		switch v := raw.(type) {
		case [16]byte:
			return uuid.UUID(v).String(), nil
		case uuid.UUID:
			return v.String(), nil
		case string:
			return v, nil
		case []byte:
			if len(v) == 16 {
				id, err := uuid.FromBytes(v)
				if err != nil {
					return nil, err
				}
				return id.String(), nil
			}
			return string(v), nil
		}
	case ColumnString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case ColumnNumber:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int:
			return int64(v), nil
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			return coerceNumber(v)
		case []byte:
			return coerceNumber(string(v))
		}
	case ColumnBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
	case ColumnDate:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			return ParseDate(v)
		case []byte:
			return ParseDate(string(v))
		}
	case ColumnArray:
		switch v := raw.(type) {
		case []any:
			return stringElements(v), nil
		case []string:
			return v, nil
		case string:
			return decodeJSONArray([]byte(v))
		case []byte:
			return decodeJSONArray(v)
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s property %q", raw, col.Type, col.Property)
}

func decodeJSONArray(raw []byte) ([]string, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode array value: %w", err)
	}
	return stringElements(items), nil
}

func stringElements(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}
