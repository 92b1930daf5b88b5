package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rpattn/contentql/internal/domain"
)

var (
	requestFields = map[string]bool{
		"entityType": true, "properties": true, "filterGroups": true, "sorts": true,
		"limit": true, "after": true, "search": true,
	}
	groupFields  = map[string]bool{"filters": true, "operator": true}
	filterFields = map[string]bool{"property": true, "operator": true, "value": true}
	sortFields   = map[string]bool{"property": true, "direction": true}
)

// ParseRequest decodes a JSON search body. Every structural problem is
// reported with its field path in a single ValidationError.
func ParseRequest(body []byte) (domain.SearchRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return domain.SearchRequest{}, NewValidationError("", "request body is not valid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.SearchRequest{}, NewValidationError("", "request body must contain a single JSON object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return domain.SearchRequest{}, NewValidationError("", "request body must be a JSON object")
	}
	return parseRequestObject(obj)
}

// ParseRequestMap is ParseRequest for an already decoded object, such as a
// GraphQL input value.
func ParseRequestMap(obj map[string]any) (domain.SearchRequest, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return domain.SearchRequest{}, NewValidationError("", "request is not representable as JSON")
	}
	return ParseRequest(raw)
}

func parseRequestObject(obj map[string]any) (domain.SearchRequest, error) {
	var req domain.SearchRequest
	var issues issueList
	rejectUnknown("", obj, requestFields, &issues)

	if v, ok := obj["entityType"]; ok && v != nil {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			req.EntityType = domain.EntityType(strings.TrimSpace(s))
		} else {
			issues.add("entityType", "must be a non-empty string")
		}
	} else {
		issues.add("entityType", "is required")
	}

	if v, ok := obj["properties"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			issues.add("properties", "must be an array of strings")
		}
		for i, item := range list {
			s, ok := item.(string)
			if !ok || s == "" {
				issues.add(fmt.Sprintf("properties[%d]", i), "must be a non-empty string")
				continue
			}
			req.Properties = append(req.Properties, s)
		}
	}

	if v, ok := obj["filterGroups"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			issues.add("filterGroups", "must be an array")
		}
		for i, item := range list {
			if group, ok := parseGroup(fmt.Sprintf("filterGroups[%d]", i), item, &issues); ok {
				req.FilterGroups = append(req.FilterGroups, group)
			}
		}
	}

	if v, ok := obj["sorts"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			issues.add("sorts", "must be an array")
		}
		for i, item := range list {
			if sc, ok := parseSort(fmt.Sprintf("sorts[%d]", i), item, &issues); ok {
				req.Sorts = append(req.Sorts, sc)
			}
		}
	}

	if v, ok := obj["limit"]; ok && v != nil {
		n, isNum := v.(json.Number)
		limit, err := n.Int64()
		switch {
		case !isNum || err != nil:
			issues.add("limit", "must be an integer")
		case limit < 1 || limit > domain.MaxSearchLimit:
			issues.add("limit", "must be between 1 and %d", domain.MaxSearchLimit)
		default:
			req.Limit = int(limit)
		}
	}

	req.After = optionalString("after", obj, &issues)
	req.Search = optionalString("search", obj, &issues)

	if err := issues.err(); err != nil {
		return domain.SearchRequest{}, err
	}
	return req, nil
}

func parseGroup(path string, raw any, issues *issueList) (domain.FilterGroup, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		issues.add(path, "must be an object")
		return domain.FilterGroup{}, false
	}
	rejectUnknown(path, obj, groupFields, issues)

	var group domain.FilterGroup
	if v, ok := obj["operator"]; ok && v != nil {
		s, isString := v.(string)
		op, valid := normalizeGroupOperator(domain.GroupOperator(s))
		if !isString || !valid {
			issues.add(path+".operator", "must be AND or OR")
		}
		group.Operator = op
	} else {
		group.Operator = domain.GroupAnd
	}

	list, ok := obj["filters"].([]any)
	if !ok {
		issues.add(path+".filters", "must be an array")
		return domain.FilterGroup{}, false
	}
	if len(list) == 0 {
		issues.add(path+".filters", "must contain at least one filter")
	}
	for i, item := range list {
		fpath := fmt.Sprintf("%s.filters[%d]", path, i)
		fobj, ok := item.(map[string]any)
		if !ok {
			issues.add(fpath, "must be an object")
			continue
		}
		rejectUnknown(fpath, fobj, filterFields, issues)
		property, _ := fobj["property"].(string)
		if property == "" {
			issues.add(fpath+".property", "must be a non-empty string")
		}
		opRaw, _ := fobj["operator"].(string)
		op := domain.FilterOperator(strings.ToLower(strings.TrimSpace(opRaw)))
		if !op.Valid() {
			issues.add(fpath+".operator", "unknown operator %q", opRaw)
		}
		group.Filters = append(group.Filters, domain.Filter{Property: property, Operator: op, Value: fobj["value"]})
	}
	return group, true
}

func parseSort(path string, raw any, issues *issueList) (domain.SortConfig, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		issues.add(path, "must be an object")
		return domain.SortConfig{}, false
	}
	rejectUnknown(path, obj, sortFields, issues)
	property, _ := obj["property"].(string)
	if property == "" {
		issues.add(path+".property", "must be a non-empty string")
	}
	sc := domain.SortConfig{Property: property, Direction: domain.SortDirectionAsc}
	if v, ok := obj["direction"]; ok && v != nil {
		s, isString := v.(string)
		desc, valid := normalizeDirection(domain.SortDirection(s))
		if !isString || !valid {
			issues.add(path+".direction", "must be asc or desc")
		}
		if desc {
			sc.Direction = domain.SortDirectionDesc
		}
	}
	return sc, true
}

func optionalString(field string, obj map[string]any, issues *issueList) string {
	v, ok := obj[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		issues.add(field, "must be a string")
		return ""
	}
	return s
}

func rejectUnknown(path string, obj map[string]any, allowed map[string]bool, issues *issueList) {
	var unknown []string
	for key := range obj {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		field := key
		if path != "" {
			field = path + "." + key
		}
		issues.add(field, "unknown field")
	}
}
