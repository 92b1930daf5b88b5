package domain

// EntityType names a searchable kind of record.
type EntityType string

const (
	EntityTypePosts      EntityType = "posts"
	EntityTypeMedia      EntityType = "media"
	EntityTypeUsers      EntityType = "users"
	EntityTypeTaxonomies EntityType = "taxonomies"
	// EntityTypeAll fans a search out across every registered entity type.
	EntityTypeAll EntityType = "all"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// SearchRequest is the canonical form of a search, independent of whether it
// arrived as a JSON body, query parameters or a GraphQL input object.
type SearchRequest struct {
	EntityType   EntityType    `json:"entityType"`
	Properties   []string      `json:"properties,omitempty"`
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Sorts        []SortConfig  `json:"sorts,omitempty"`
	// Limit of zero selects DefaultSearchLimit.
	Limit  int    `json:"limit,omitempty"`
	After  string `json:"after,omitempty"`
	Search string `json:"search,omitempty"`
}

// EffectiveLimit returns the page size the request asks for.
func (r SearchRequest) EffectiveLimit() int {
	if r.Limit == 0 {
		return DefaultSearchLimit
	}
	return r.Limit
}

// WithAfter returns a copy of the request resuming after the given cursor.
func (r SearchRequest) WithAfter(cursor string) SearchRequest {
	next := r
	next.After = cursor
	return next
}
