package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/contentql/internal/domain"
)

const maxSearchTermLength = 256

// Query is a search addressed to one entity searcher: the request minus
// entity type and tenant.
type Query struct {
	Properties   []string
	FilterGroups []domain.FilterGroup
	Sorts        []domain.SortConfig
	Limit        int
	After        string
	Search       string

	// implicitOrder marks Sorts[0] as chosen by the fan-out rather than the
	// caller, so the scope does not have to permit it.
	implicitOrder bool
}

// QueryFromRequest drops the entity type from req.
func QueryFromRequest(req domain.SearchRequest) Query {
	return Query{
		Properties:   req.Properties,
		FilterGroups: req.FilterGroups,
		Sorts:        req.Sorts,
		Limit:        req.Limit,
		After:        req.After,
		Search:       req.Search,
	}
}

type boundGroup struct {
	op      domain.GroupOperator
	filters []boundFilter
}

type boundSort struct {
	column Column
	desc   bool
}

// plan is a fully resolved query against one schema. Building SQL from a plan
// cannot fail.
type plan struct {
	schema        *EntitySchema
	output        []Column
	constraints   []boundFilter
	groups        []boundGroup
	search        string
	searchColumns []Column
	sorts         []boundSort
	limit         int
	after         []any
}

// plan resolves q against the schema's allow-list and the caller's scope.
// Structural problems win over scope violations.
func (s *EntitySchema) plan(q Query, scope *Scope) (*plan, error) {
	var issues issueList
	var violation *ScopeViolation
	deny := func(property string) {
		if violation == nil {
			violation = &ScopeViolation{Entity: s.Entity, Property: property}
		}
	}
	p := &plan{schema: s}

	switch {
	case q.Limit == 0:
		p.limit = domain.DefaultSearchLimit
	case q.Limit < 1 || q.Limit > domain.MaxSearchLimit:
		issues.add("limit", "must be between 1 and %d", domain.MaxSearchLimit)
	default:
		p.limit = q.Limit
	}

	projected := make(map[string]bool)
	if len(q.Properties) > 0 {
		for i, prop := range q.Properties {
			col, ok := s.Column(prop)
			if !ok {
				issues.add(fmt.Sprintf("properties[%d]", i), "unknown property %q", prop)
				continue
			}
			if !scope.AllowsProperty(s.Entity, prop) {
				deny(prop)
				continue
			}
			if !projected[prop] {
				projected[prop] = true
				p.output = append(p.output, col)
			}
		}
	} else {
		for _, prop := range s.DefaultProperties {
			if scope.AllowsProperty(s.Entity, prop) && !projected[prop] {
				col, _ := s.Column(prop)
				projected[prop] = true
				p.output = append(p.output, col)
			}
		}
	}
	if !projected["id"] {
		p.output = append(p.output, s.idColumn())
	}

	for gi, group := range q.FilterGroups {
		path := fmt.Sprintf("filterGroups[%d]", gi)
		op, ok := normalizeGroupOperator(group.Operator)
		if !ok {
			issues.add(path+".operator", "must be AND or OR, got %q", group.Operator)
		}
		if len(group.Filters) == 0 {
			issues.add(path+".filters", "must contain at least one filter")
			continue
		}
		bg := boundGroup{op: op}
		for fi, f := range group.Filters {
			fpath := fmt.Sprintf("%s.filters[%d]", path, fi)
			bf, ok := s.bind(f, fpath, &issues)
			if !ok {
				continue
			}
			if !scope.AllowsProperty(s.Entity, f.Property) {
				deny(f.Property)
				continue
			}
			bg.filters = append(bg.filters, bf)
		}
		p.groups = append(p.groups, bg)
	}

	for ci, f := range scope.ConstraintsFor(s.Entity) {
		if bf, ok := s.bind(f, fmt.Sprintf("scope.constraints[%d]", ci), &issues); ok {
			p.constraints = append(p.constraints, bf)
		}
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		if utf8.RuneCountInString(term) > maxSearchTermLength {
			issues.add("search", "must be at most %d characters", maxSearchTermLength)
		}
		searchable := s.SearchableColumns()
		for _, col := range searchable {
			if scope.AllowsProperty(s.Entity, col.Property) {
				p.searchColumns = append(p.searchColumns, col)
			}
		}
		switch {
		case len(searchable) == 0:
			issues.add("search", "%s has no searchable properties", s.Entity)
		case len(p.searchColumns) == 0:
			deny(searchable[0].Property)
		}
		p.search = term
	}

	sorts := q.Sorts
	explicit := len(sorts) > 0
	if !explicit {
		sorts = s.DefaultSort
	}
	sorted := make(map[string]bool)
	idSorted := false
	for si, sc := range sorts {
		path := fmt.Sprintf("sorts[%d]", si)
		col, ok := s.Column(sc.Property)
		if !ok {
			issues.add(path+".property", "unknown property %q", sc.Property)
			continue
		}
		if !col.Sortable {
			issues.add(path+".property", "property %q is not sortable", sc.Property)
			continue
		}
		desc, ok := normalizeDirection(sc.Direction)
		if !ok {
			issues.add(path+".direction", "must be asc or desc, got %q", sc.Direction)
			continue
		}
		if sorted[sc.Property] {
			issues.add(path+".property", "property %q is sorted more than once", sc.Property)
			continue
		}
		if explicit && !(si == 0 && q.implicitOrder) && !scope.AllowsProperty(s.Entity, sc.Property) {
			deny(sc.Property)
			continue
		}
		sorted[sc.Property] = true
		// id is unique, later keys could never break a tie
		if !idSorted {
			p.sorts = append(p.sorts, boundSort{column: col, desc: desc})
			idSorted = sc.Property == "id"
		}
	}
	if len(issues) > 0 {
		return nil, issues.err()
	}
	if violation != nil {
		return nil, violation
	}
	if !idSorted {
		p.sorts = append(p.sorts, boundSort{column: s.idColumn(), desc: p.sorts[0].desc})
	}

	if q.After != "" {
		keys, err := decodeEntityCursor(q.After, s.Entity, p.sorts)
		if err != nil {
			return nil, NewValidationError("after", "%s", err.Error())
		}
		p.after = keys
	}
	return p, nil
}

func (s *EntitySchema) bind(f domain.Filter, path string, issues *issueList) (boundFilter, bool) {
	col, ok := s.Column(f.Property)
	if !ok {
		issues.add(path+".property", "unknown property %q", f.Property)
		return boundFilter{}, false
	}
	if !col.Filterable {
		issues.add(path+".property", "property %q is not filterable", f.Property)
		return boundFilter{}, false
	}
	bf, issue := bindFilter(col, f)
	if issue != nil {
		issues.add(path+"."+issue.field, "%s", issue.message)
		return boundFilter{}, false
	}
	return bf, true
}

func normalizeGroupOperator(op domain.GroupOperator) (domain.GroupOperator, bool) {
	switch strings.ToUpper(strings.TrimSpace(string(op))) {
	case "", string(domain.GroupAnd):
		return domain.GroupAnd, true
	case string(domain.GroupOr):
		return domain.GroupOr, true
	}
	return "", false
}

func normalizeDirection(dir domain.SortDirection) (desc bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(string(dir))) {
	case "", string(domain.SortDirectionAsc):
		return false, true
	case string(domain.SortDirectionDesc):
		return true, true
	}
	return false, false
}
