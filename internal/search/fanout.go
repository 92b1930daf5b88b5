package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/contentql/internal/domain"
)

// recencySortConfig orders fan-out results when the requested primary sort
// does not mean the same thing on every entity type.
var recencySortConfig = domain.SortConfig{Property: "createdAt", Direction: domain.SortDirectionDesc}

// entityOutcome is the tagged result of one entity search in a fan-out.
type entityOutcome struct {
	entity domain.EntityType
	page   Page
	err    error
}

func (o *Orchestrator) searchAll(ctx context.Context, tenant uuid.UUID, scope *Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	var participants []EntitySearcher
	for _, entity := range o.order {
		if scope.AllowsEntity(entity) {
			participants = append(participants, o.searchers[entity])
		}
	}
	if len(participants) == 0 {
		return domain.SearchResult{}, &ScopeViolation{Entity: domain.EntityTypeAll}
	}

	if err := validateFanout(participants, req); err != nil {
		return domain.SearchResult{}, err
	}
	order := mergeOrderFor(participants, req.Sorts)
	signature := order.signature()
	limit := req.EffectiveLimit()

	positions := make(map[domain.EntityType]string)
	done := make(map[domain.EntityType]bool)
	if req.After != "" {
		tok, err := decodeCursor(req.After)
		if err != nil {
			return domain.SearchResult{}, NewValidationError("after", "%s", err.Error())
		}
		if tok.Entity != domain.EntityTypeAll {
			return domain.SearchResult{}, NewValidationError("after", "cursor belongs to %q, not %q", tok.Entity, domain.EntityTypeAll)
		}
		if tok.Sort != signature {
			return domain.SearchResult{}, NewValidationError("after", "cursor was issued for a different sort order")
		}
		for entity, pos := range tok.Positions {
			positions[entity] = pos
		}
		for _, entity := range tok.Done {
			done[entity] = true
		}
	}

	target := Target{Tenant: tenant, Scope: scope}
	var active []EntitySearcher
	var queries []Query
	for _, s := range participants {
		if done[s.Entity()] {
			continue
		}
		q, ok := entityQuery(s.Schema(), req, order, positions[s.Entity()], limit)
		if !ok {
			done[s.Entity()] = true
			delete(positions, s.Entity())
			continue
		}
		// nothing runs until every entity has accepted its query
		if err := s.Validate(target, q); err != nil {
			return domain.SearchResult{}, err
		}
		active = append(active, s)
		queries = append(queries, q)
	}

	outcomes := make([]entityOutcome, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range active {
		g.Go(func() error {
			page, err := s.Search(gctx, target, queries[i])
			outcomes[i] = entityOutcome{entity: s.Entity(), page: page, err: err}
			// a failing entity must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	result := domain.SearchResult{Results: make([]domain.Record, 0, limit)}
	var causes []error
	for _, oc := range outcomes {
		if oc.err == nil {
			continue
		}
		var execErr *ExecutionError
		if !errors.As(oc.err, &execErr) {
			return domain.SearchResult{}, oc.err
		}
		o.logFailure(tenant, oc.entity, oc.err)
		causes = append(causes, execErr.Unwrap())
		result.Errors = append(result.Errors, domain.EntityError{Entity: oc.entity, Message: oc.err.Error()})
	}
	if len(active) > 0 && len(causes) == len(active) {
		return domain.SearchResult{}, NewExecutionError(domain.EntityTypeAll, errors.Join(causes...))
	}

	taken := mergeHits(outcomes, mergeKeys(active, queries), limit, &result)

	for i, oc := range outcomes {
		if oc.err != nil {
			continue
		}
		n := taken[i]
		if n > 0 {
			positions[oc.entity] = oc.page.Hits[n-1].Cursor
		}
		if n == len(oc.page.Hits) && oc.page.NextCursor == "" {
			done[oc.entity] = true
			delete(positions, oc.entity)
		}
	}

	var exhausted []domain.EntityType
	remaining := false
	for _, s := range participants {
		if done[s.Entity()] {
			exhausted = append(exhausted, s.Entity())
		} else {
			remaining = true
		}
	}
	if remaining {
		result.NextCursor = encodeCursor(cursorToken{
			Entity:    domain.EntityTypeAll,
			Sort:      signature,
			Positions: positions,
			Done:      exhausted,
		})
	}
	return result, nil
}

// mergeHits takes up to limit hits across outcomes in merge order and returns
// how many hits of each outcome were consumed. keys holds the direction of
// each leading hit key that is comparable across outcomes. Full ties go to
// the entity registered first.
func mergeHits(outcomes []entityOutcome, keys []bool, limit int, result *domain.SearchResult) []int {
	taken := make([]int, len(outcomes))
	for len(result.Results) < limit {
		best := -1
		for i, oc := range outcomes {
			if oc.err != nil || taken[i] >= len(oc.page.Hits) {
				continue
			}
			if best < 0 {
				best = i
				continue
			}
			if compareHits(oc.page.Hits[taken[i]], outcomes[best].page.Hits[taken[best]], keys) < 0 {
				best = i
			}
		}
		if best < 0 {
			break
		}
		hit := outcomes[best].page.Hits[taken[best]]
		record := make(domain.Record, len(hit.Record)+1)
		for k, v := range hit.Record {
			record[k] = v
		}
		record["entityType"] = string(outcomes[best].entity)
		result.Results = append(result.Results, record)
		taken[best]++
	}
	return taken
}

// validateFanout rejects references no participating entity understands.
// References that only some entities understand are narrowed by entityQuery.
func validateFanout(participants []EntitySearcher, req domain.SearchRequest) error {
	var issues issueList
	known := func(property string) bool {
		for _, s := range participants {
			if s.Schema().HasProperty(property) {
				return true
			}
		}
		return false
	}

	if req.Limit != 0 && (req.Limit < 1 || req.Limit > domain.MaxSearchLimit) {
		issues.add("limit", "must be between 1 and %d", domain.MaxSearchLimit)
	}
	for i, prop := range req.Properties {
		if !known(prop) {
			issues.add(fmt.Sprintf("properties[%d]", i), "unknown property %q", prop)
		}
	}
	for gi, group := range req.FilterGroups {
		path := fmt.Sprintf("filterGroups[%d]", gi)
		if _, ok := normalizeGroupOperator(group.Operator); !ok {
			issues.add(path+".operator", "must be AND or OR, got %q", group.Operator)
		}
		if len(group.Filters) == 0 {
			issues.add(path+".filters", "must contain at least one filter")
		}
		for fi, f := range group.Filters {
			if !known(f.Property) {
				issues.add(fmt.Sprintf("%s.filters[%d].property", path, fi), "unknown property %q", f.Property)
			}
		}
	}
	for i, sc := range req.Sorts {
		if !known(sc.Property) {
			issues.add(fmt.Sprintf("sorts[%d].property", i), "unknown property %q", sc.Property)
		}
		if _, ok := normalizeDirection(sc.Direction); !ok {
			issues.add(fmt.Sprintf("sorts[%d].direction", i), "must be asc or desc, got %q", sc.Direction)
		}
	}
	return issues.err()
}

// mergeOrder is how fan-out results are ordered. primary is the single key
// hits are merged on: the requested primary sort when it is sortable with the
// same type everywhere, recency otherwise. tail holds the remaining requested
// sorts, which each entity applies where it can.
type mergeOrder struct {
	primary  domain.SortConfig
	implicit bool
	tail     []domain.SortConfig
}

func mergeOrderFor(participants []EntitySearcher, sorts []domain.SortConfig) mergeOrder {
	if len(sorts) == 0 {
		return mergeOrder{primary: recencySortConfig, implicit: true}
	}
	order := mergeOrder{primary: recencySortConfig, implicit: true}
	rest := sorts
	if primary, ok := uniformSort(participants, sorts[0]); ok {
		order = mergeOrder{primary: primary}
		rest = sorts[1:]
	}
	for _, sc := range rest {
		if sc.Property != order.primary.Property {
			order.tail = append(order.tail, sc)
		}
	}
	return order
}

// uniformSort reports whether sc is sortable with the same column type on
// every participant, normalizing its direction.
func uniformSort(participants []EntitySearcher, sc domain.SortConfig) (domain.SortConfig, bool) {
	var kind ColumnType
	for i, s := range participants {
		col, ok := s.Schema().Column(sc.Property)
		if !ok || !col.Sortable {
			return domain.SortConfig{}, false
		}
		if i == 0 {
			kind = col.Type
		} else if col.Type != kind {
			return domain.SortConfig{}, false
		}
	}
	if desc, _ := normalizeDirection(sc.Direction); desc {
		return domain.SortConfig{Property: sc.Property, Direction: domain.SortDirectionDesc}, true
	}
	return domain.SortConfig{Property: sc.Property, Direction: domain.SortDirectionAsc}, true
}

func (m mergeOrder) signature() string {
	parts := []string{m.primary.Property + ":" + string(m.primary.Direction)}
	for _, sc := range m.tail {
		dir := domain.SortDirectionAsc
		if desc, _ := normalizeDirection(sc.Direction); desc {
			dir = domain.SortDirectionDesc
		}
		parts = append(parts, sc.Property+":"+string(dir))
	}
	return strings.Join(parts, ",")
}

// mergeKeys returns the direction of every leading sort key shared by all
// active queries with the same column type. The merge key always is; later
// keys only while every entity sorts on them.
func mergeKeys(active []EntitySearcher, queries []Query) []bool {
	if len(queries) == 0 {
		return nil
	}
	first := queries[0].Sorts
	keys := make([]bool, 0, len(first))
	for j, sc := range first {
		col, ok := active[0].Schema().Column(sc.Property)
		if !ok {
			break
		}
		shared := true
		for i := 1; i < len(queries) && shared; i++ {
			other := queries[i].Sorts
			if j >= len(other) || other[j].Property != sc.Property || other[j].Direction != sc.Direction {
				shared = false
				break
			}
			otherCol, ok := active[i].Schema().Column(sc.Property)
			shared = ok && otherCol.Type == col.Type
		}
		if !shared {
			break
		}
		desc, _ := normalizeDirection(sc.Direction)
		keys = append(keys, desc)
	}
	return keys
}

// compareHits orders two hits of different entities on their shared keys.
func compareHits(a, b Hit, keys []bool) int {
	for j, desc := range keys {
		if j >= len(a.Keys) || j >= len(b.Keys) {
			break
		}
		c := compareKeys(a.Keys[j], b.Keys[j])
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// entityQuery narrows req to what schema understands. Tail sorts the entity
// cannot sort on are skipped. A filter on a property
// the entity lacks never matches, like a filter on NULL: it drops out of an OR
// group, and an AND group (or an OR group left empty) excludes the entity,
// reported as ok == false.
func entityQuery(schema *EntitySchema, req domain.SearchRequest, order mergeOrder, after string, limit int) (Query, bool) {
	q := Query{
		Sorts:         []domain.SortConfig{order.primary},
		Limit:         limit,
		After:         after,
		Search:        req.Search,
		implicitOrder: order.implicit,
	}
	for _, sc := range order.tail {
		if col, ok := schema.Column(sc.Property); ok && col.Sortable {
			q.Sorts = append(q.Sorts, sc)
		}
	}
	if len(req.Properties) > 0 {
		for _, prop := range req.Properties {
			if schema.HasProperty(prop) {
				q.Properties = append(q.Properties, prop)
			}
		}
		if len(q.Properties) == 0 {
			q.Properties = []string{"id"}
		}
	}
	for _, group := range req.FilterGroups {
		op, _ := normalizeGroupOperator(group.Operator)
		var kept []domain.Filter
		for _, f := range group.Filters {
			if schema.HasProperty(f.Property) {
				kept = append(kept, f)
			} else if op == domain.GroupAnd {
				return Query{}, false
			}
		}
		if len(kept) == 0 {
			return Query{}, false
		}
		q.FilterGroups = append(q.FilterGroups, domain.FilterGroup{Filters: kept, Operator: group.Operator})
	}
	return q, true
}

// compareKeys orders two sort key values of the same column type.
func compareKeys(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case int64, float64:
		xf, _ := toFloat(a)
		if yf, ok := toFloat(b); ok {
			switch {
			case xf < yf:
				return -1
			case xf > yf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
