package domain

import "strings"

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfig captures one ordering preference.
type SortConfig struct {
	Property  string        `json:"property"`
	Direction SortDirection `json:"direction"`
}

// Desc reports whether the sort runs in descending order.
func (s SortConfig) Desc() bool {
	return strings.EqualFold(string(s.Direction), string(SortDirectionDesc))
}
