package search

import (
	"slices"

	"github.com/rpattn/contentql/internal/domain"
)

// Scope is a caller-specific restriction decided by the authorization layer.
// A nil Scope permits everything.
type Scope struct {
	// Entities limits the searchable entity types; empty means all.
	Entities []domain.EntityType `json:"entities,omitempty"`
	// Properties limits the properties an entity may reference; a missing
	// entry means all of them. id is always permitted.
	Properties map[domain.EntityType][]string `json:"properties,omitempty"`
	// Constraints are extra filters ANDed into every query of the entity.
	Constraints map[domain.EntityType][]domain.Filter `json:"constraints,omitempty"`
}

// AllowsEntity reports whether the scope permits searching entity.
func (s *Scope) AllowsEntity(entity domain.EntityType) bool {
	if s == nil || len(s.Entities) == 0 {
		return true
	}
	return slices.Contains(s.Entities, entity)
}

// AllowsProperty reports whether the scope permits referencing property on entity.
func (s *Scope) AllowsProperty(entity domain.EntityType, property string) bool {
	if s == nil || property == "id" {
		return true
	}
	allowed, restricted := s.Properties[entity]
	if !restricted {
		return true
	}
	return slices.Contains(allowed, property)
}

// ConstraintsFor returns the filters injected for entity.
func (s *Scope) ConstraintsFor(entity domain.EntityType) []domain.Filter {
	if s == nil {
		return nil
	}
	return s.Constraints[entity]
}
