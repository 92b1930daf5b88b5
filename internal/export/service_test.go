package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

// pagedService serves a fixed set of records with the cursor as an offset.
type pagedService struct {
	records []domain.Record
	limits  []int
	errs    []domain.EntityError
}

func (s *pagedService) Search(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	s.limits = append(s.limits, req.Limit)
	offset := 0
	if req.After != "" {
		offset = len(req.After)
	}
	end := min(offset+req.Limit, len(s.records))
	result := domain.SearchResult{Results: s.records[offset:end], Errors: s.errs}
	if end < len(s.records) {
		result.NextCursor = strings.Repeat("x", end)
	}
	return result, nil
}

func posts(n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{"id": uuid.NewString(), "title": "Post", "views": int64(i), "tags": []string{"a", "b"}}
	}
	return out
}

func TestExport_CSVWalksAllPages(t *testing.T) {
	svc := &pagedService{records: posts(5)}
	exporter := NewService(svc, WithPageSize(2))

	var buf bytes.Buffer
	summary, err := exporter.Export(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypePosts}, FormatCSV, &buf)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Rows)
	assert.False(t, summary.Truncated)
	assert.Equal(t, []int{2, 2, 2}, svc.limits)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"id", "tags", "title", "views"}, rows[0])
	assert.Equal(t, "a;b", rows[1][1])
	assert.Equal(t, "4", rows[5][3])
}

func TestExport_StopsAtMaxRows(t *testing.T) {
	svc := &pagedService{records: posts(10)}
	exporter := NewService(svc, WithPageSize(4), WithMaxRows(6))

	var buf bytes.Buffer
	summary, err := exporter.Export(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypePosts, Properties: []string{"title"}}, FormatCSV, &buf)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Rows)
	assert.True(t, summary.Truncated)
	assert.Equal(t, []int{4, 2}, svc.limits)
	assert.Equal(t, []string{"id", "title", "tags", "views"}, summary.Columns)
}

func TestExport_PartialResultFails(t *testing.T) {
	svc := &pagedService{records: posts(1), errs: []domain.EntityError{{Entity: domain.EntityTypeMedia, Message: "search execution failed for media"}}}
	_, err := NewService(svc).Export(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypeAll}, FormatCSV, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, search.ErrCodeExecution, search.CodeOf(err))
}

func TestExport_XLSX(t *testing.T) {
	svc := &pagedService{records: posts(3)}
	var buf bytes.Buffer
	_, err := NewService(svc).Export(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypePosts}, FormatXLSX, &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "title", rows[0][2])
	assert.Equal(t, "2", rows[3][3])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	_, err = ParseFormat("pdf")
	assert.Equal(t, search.ErrCodeValidation, search.CodeOf(err))
}

func TestHandler(t *testing.T) {
	tenant := uuid.New()
	identity := func(r *http.Request) (uuid.UUID, *search.Scope, bool) { return tenant, nil, true }
	h := NewHTTPHandler(NewService(&pagedService{records: posts(2)}), identity, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/export?format=csv", strings.NewReader(`{"entityType":"posts"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Export-Rows"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "posts-export.csv")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/export", strings.NewReader(`{"entityType":"posts","limit":500}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
