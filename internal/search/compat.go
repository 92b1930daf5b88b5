package search

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/contentql/internal/domain"
)

// reservedParams are query keys that never become filters.
var reservedParams = map[string]bool{
	"entityType": true, "search": true, "q": true, "limit": true, "after": true,
	"sort": true, "properties": true, "fields": true, "page": true, "expand": true,
}

// ParseQueryParams translates the flat GET form into a canonical request plus
// the requested compatibility page (0 when absent). Every non-reserved key
// becomes one filter of a single AND group: "status=published" is an eq
// filter and "views[between]=10,20" names its operator, with list operands
// separated by commas.
func ParseQueryParams(values url.Values) (domain.SearchRequest, int, error) {
	var req domain.SearchRequest
	var issues issueList

	req.EntityType = domain.EntityType(strings.TrimSpace(values.Get("entityType")))
	req.Search = values.Get("search")
	if req.Search == "" {
		req.Search = values.Get("q")
	}
	req.After = values.Get("after")

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			issues.add("limit", "must be an integer")
		case limit < 1 || limit > domain.MaxSearchLimit:
			issues.add("limit", "must be between 1 and %d", domain.MaxSearchLimit)
		default:
			req.Limit = limit
		}
	}

	page := 0
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			issues.add("page", "must be a positive integer")
		}
		page = n
	}

	props := values.Get("properties")
	if props == "" {
		props = values.Get("fields")
	}
	req.Properties = splitList(props)

	for _, item := range splitList(values.Get("sort")) {
		sc := domain.SortConfig{Property: item, Direction: domain.SortDirectionAsc}
		switch {
		case strings.HasPrefix(item, "-"):
			sc = domain.SortConfig{Property: item[1:], Direction: domain.SortDirectionDesc}
		case strings.HasPrefix(item, "+"):
			sc.Property = item[1:]
		}
		req.Sorts = append(req.Sorts, sc)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if !reservedParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var filters []domain.Filter
	for _, key := range keys {
		property, op, ok := splitFilterKey(key)
		if !ok {
			issues.add(key, "filter keys look like property or property[operator]")
			continue
		}
		for _, raw := range values[key] {
			f := domain.Filter{Property: property, Operator: op}
			switch op.Base() {
			case domain.OperatorIsNull, domain.OperatorIsNotNull:
			case domain.OperatorIn, domain.OperatorNotIn, domain.OperatorBetween:
				f.Value = splitList(raw)
			default:
				f.Value = raw
			}
			filters = append(filters, f)
		}
	}
	if len(filters) > 0 {
		req.FilterGroups = []domain.FilterGroup{{Filters: filters, Operator: domain.GroupAnd}}
	}

	if err := issues.err(); err != nil {
		return domain.SearchRequest{}, 0, err
	}
	return req, page, nil
}

func splitFilterKey(key string) (string, domain.FilterOperator, bool) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, domain.OperatorEq, key != ""
	}
	if open == 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	op := domain.FilterOperator(strings.ToLower(key[open+1 : len(key)-1]))
	if !op.Valid() {
		return "", "", false
	}
	return key[:open], op, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SearchPage serves page-numbered reads by walking cursors from the first
// page. The cursor stays authoritative: pages are recomputed on every call, so
// writes between calls can shift page contents.
func SearchPage(ctx context.Context, svc Service, tenant uuid.UUID, scope *Scope, req domain.SearchRequest, page, maxPages int) (domain.SearchResult, error) {
	if page <= 1 {
		return svc.Search(ctx, tenant, scope, req)
	}
	if page > maxPages {
		return domain.SearchResult{}, NewValidationError("page", "must be between 1 and %d", maxPages)
	}
	if req.After != "" {
		return domain.SearchResult{}, NewValidationError("page", "cannot be combined with after")
	}

	current := req
	for i := 1; i < page; i++ {
		res, err := svc.Search(ctx, tenant, scope, current)
		if err != nil {
			return domain.SearchResult{}, err
		}
		if res.NextCursor == "" {
			return domain.SearchResult{Results: []domain.Record{}}, nil
		}
		current = current.WithAfter(res.NextCursor)
	}
	return svc.Search(ctx, tenant, scope, current)
}
