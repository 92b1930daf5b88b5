package domain

// Record is one projected row keyed by property name.
type Record map[string]any

// EntityError reports an entity type that failed during a fan-out search.
type EntityError struct {
	Entity  EntityType `json:"entity"`
	Message string     `json:"message"`
}

// SearchResult is the uniform response envelope.
type SearchResult struct {
	Results    []Record      `json:"results"`
	NextCursor string        `json:"nextCursor,omitempty"`
	Errors     []EntityError `json:"errors,omitempty"`
}

// Partial reports whether some entity types failed to contribute results.
func (r SearchResult) Partial() bool {
	return len(r.Errors) > 0
}
