package search

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/contentql/internal/domain"
)

func TestParseQueryParams(t *testing.T) {
	values, err := url.ParseQuery("entityType=posts&status=published&views[between]=10,20&tags[in]=go,%20news&excerpt[is_null]=" +
		"&sort=-views,title&limit=5&page=2&fields=title,views&q=hello&expand=author")
	require.NoError(t, err)

	req, page, err := ParseQueryParams(values)
	require.NoError(t, err)

	assert.Equal(t, 2, page)
	assert.Equal(t, domain.EntityTypePosts, req.EntityType)
	assert.Equal(t, "hello", req.Search)
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, []string{"title", "views"}, req.Properties)
	assert.Equal(t, []domain.SortConfig{
		{Property: "views", Direction: domain.SortDirectionDesc},
		{Property: "title", Direction: domain.SortDirectionAsc},
	}, req.Sorts)
	require.Len(t, req.FilterGroups, 1)
	assert.Equal(t, domain.GroupAnd, req.FilterGroups[0].Operator)
	assert.Equal(t, []domain.Filter{
		{Property: "excerpt", Operator: domain.OperatorIsNull},
		{Property: "status", Operator: domain.OperatorEq, Value: "published"},
		{Property: "tags", Operator: domain.OperatorIn, Value: []string{"go", "news"}},
		{Property: "views", Operator: domain.OperatorBetween, Value: []string{"10", "20"}},
	}, req.FilterGroups[0].Filters)
}

func TestParseQueryParams_RepeatedKeysAreAnded(t *testing.T) {
	req, _, err := ParseQueryParams(url.Values{"views[gte]": {"10", "20"}})
	require.NoError(t, err)
	assert.Len(t, req.FilterGroups[0].Filters, 2)
}

func TestParseQueryParams_Errors(t *testing.T) {
	_, _, err := ParseQueryParams(url.Values{
		"limit":       {"many"},
		"page":        {"0"},
		"views[like]": {"1"},
		"[eq]":        {"x"},
	})
	paths := issuePaths(t, err)
	assert.Equal(t, "must be an integer", paths["limit"])
	assert.Equal(t, "must be a positive integer", paths["page"])
	assert.Contains(t, paths, "views[like]")
	assert.Contains(t, paths, "[eq]")

	_, _, err = ParseQueryParams(url.Values{"limit": {"500"}})
	assert.Equal(t, "must be between 1 and 100", issuePaths(t, err)["limit"])
}

// pagedService serves fixed pages; cursors are page indexes.
type pagedService struct {
	pages  [][]domain.Record
	afters []string
}

func (s *pagedService) Search(_ context.Context, _ uuid.UUID, _ *Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	s.afters = append(s.afters, req.After)
	idx := 0
	if req.After != "" {
		idx, _ = strconv.Atoi(req.After)
	}
	res := domain.SearchResult{Results: s.pages[idx]}
	if idx+1 < len(s.pages) {
		res.NextCursor = strconv.Itoa(idx + 1)
	}
	return res, nil
}

func threePages() *pagedService {
	return &pagedService{pages: [][]domain.Record{
		{{"id": "a"}, {"id": "b"}},
		{{"id": "c"}, {"id": "d"}},
		{{"id": "e"}},
	}}
}

func TestSearchPage(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	req := domain.SearchRequest{EntityType: domain.EntityTypePosts, Limit: 2}

	svc := threePages()
	res, err := SearchPage(ctx, svc, tenant, nil, req, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Results[0]["id"])
	assert.Equal(t, []string{""}, svc.afters)

	svc = threePages()
	res, err = SearchPage(ctx, svc, tenant, nil, req, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"id": "e"}}, res.Results)
	assert.Empty(t, res.NextCursor)
	assert.Equal(t, []string{"", "1", "2"}, svc.afters)

	svc = threePages()
	res, err = SearchPage(ctx, svc, tenant, nil, req, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
	assert.Len(t, svc.afters, 3)
}

func TestSearchPage_Rejects(t *testing.T) {
	ctx := context.Background()
	svc := threePages()
	req := domain.SearchRequest{EntityType: domain.EntityTypePosts}

	_, err := SearchPage(ctx, svc, uuid.New(), nil, req, 11, 10)
	assert.Equal(t, "must be between 1 and 10", issuePaths(t, err)["page"])

	_, err = SearchPage(ctx, svc, uuid.New(), nil, req.WithAfter("1"), 2, 10)
	assert.Equal(t, "cannot be combined with after", issuePaths(t, err)["page"])
	assert.Empty(t, svc.afters)
}

func TestSearchPage_AgainstStore(t *testing.T) {
	s := newStore(t)
	o := s.orchestrator(t)
	req := domain.SearchRequest{
		EntityType: domain.EntityTypePosts,
		Sorts:      []domain.SortConfig{{Property: "views"}},
		Limit:      2,
	}

	res, err := SearchPage(context.Background(), o, s.orgA, nil, req, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p4"}, s.postKeys(res.Results))
}
