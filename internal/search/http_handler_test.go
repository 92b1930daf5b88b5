package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/contentql/internal/domain"
)

type recordingService struct {
	result domain.SearchResult
	err    error

	tenant uuid.UUID
	scope  *Scope
	reqs   []domain.SearchRequest
}

func (s *recordingService) Search(_ context.Context, tenant uuid.UUID, scope *Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	s.tenant, s.scope = tenant, scope
	s.reqs = append(s.reqs, req)
	return s.result, s.err
}

type stubExpander struct {
	relations []string
}

func (e *stubExpander) Expand(_ context.Context, relation string, records []domain.Record) error {
	e.relations = append(e.relations, relation)
	if relation != "author" {
		return NewValidationError("expand", "unknown relation %q", relation)
	}
	for _, rec := range records {
		rec["author"] = domain.Record{"displayName": "Ada"}
	}
	return nil
}

var (
	handlerTenant = uuid.MustParse("5f0e4a47-6a38-4d8e-9d1e-3f7f7a4b2c11")
	handlerScope  = &Scope{Entities: []domain.EntityType{domain.EntityTypePosts}}
)

func fixedIdentity(*http.Request) (uuid.UUID, *Scope, bool) {
	return handlerTenant, handlerScope, true
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
		Issues  []Issue   `json:"issues"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHandler_Post(t *testing.T) {
	svc := &recordingService{result: domain.SearchResult{
		Results:    []domain.Record{{"id": "1", "title": "Hello"}},
		NextCursor: "next",
	}}
	h := NewHTTPHandler(svc, fixedIdentity)

	w := serve(h, http.MethodPost, "/api/v1/search", `{"entityType":"posts","limit":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"results":[{"id":"1","title":"Hello"}],"nextCursor":"next"}`, w.Body.String())

	require.Len(t, svc.reqs, 1)
	assert.Equal(t, domain.SearchRequest{EntityType: domain.EntityTypePosts, Limit: 1}, svc.reqs[0])
	assert.Equal(t, handlerTenant, svc.tenant)
	assert.Same(t, handlerScope, svc.scope)
}

func TestHandler_PathEntity(t *testing.T) {
	svc := &recordingService{}
	h := NewHTTPHandler(svc, fixedIdentity)

	w := serve(h, http.MethodPost, "/api/v1/search/media", `{"limit":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
	assert.Equal(t, domain.EntityTypeMedia, svc.reqs[0].EntityType)

	w = serve(h, http.MethodPost, "/api/v1/search/media/", `{"entityType":"media"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(h, http.MethodPost, "/api/v1/search/media", `{"entityType":"posts"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeError(t, w)
	assert.Equal(t, ErrCodeValidation, env.Error.Code)
	assert.Equal(t, "entityType", env.Error.Issues[0].Path)
	assert.Len(t, svc.reqs, 2)
}

func TestHandler_PathEntityRejectsTrailingData(t *testing.T) {
	svc := &recordingService{}
	h := NewHTTPHandler(svc, fixedIdentity)

	for _, body := range []string{`{"limit":2} {"limit":3}`, `{"limit":2}]`} {
		w := serve(h, http.MethodPost, "/api/v1/search/media", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid search request: request body must contain a single JSON object", decodeError(t, w).Error.Message)
	}
	assert.Empty(t, svc.reqs)

	w := serve(h, http.MethodPost, "/api/v1/search/media", "{\"limit\":2}\n")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Get(t *testing.T) {
	svc := &recordingService{}
	h := NewHTTPHandler(svc, fixedIdentity)

	w := serve(h, http.MethodGet, "/api/v1/search/posts?status=draft&sort=-views&limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.reqs, 1)
	req := svc.reqs[0]
	assert.Equal(t, domain.EntityTypePosts, req.EntityType)
	assert.Equal(t, 3, req.Limit)
	assert.Equal(t, []domain.Filter{{Property: "status", Operator: domain.OperatorEq, Value: "draft"}}, req.FilterGroups[0].Filters)
	assert.Equal(t, domain.SortDirectionDesc, req.Sorts[0].Direction)

	w = serve(h, http.MethodGet, "/api/v1/search/posts?page=99", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "page", decodeError(t, w).Error.Issues[0].Path)
}

func TestHandler_Expand(t *testing.T) {
	svc := &recordingService{result: domain.SearchResult{Results: []domain.Record{{"id": "1", "authorId": "a"}}}}
	expander := &stubExpander{}
	h := NewHTTPHandler(svc, fixedIdentity, WithExpander(expander))

	w := serve(h, http.MethodPost, "/api/v1/search?expand=author", `{"entityType":"posts"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[{"id":"1","authorId":"a","author":{"displayName":"Ada"}}]}`, w.Body.String())

	w = serve(h, http.MethodPost, "/api/v1/search?expand=tags", `{"entityType":"posts"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"author", "tags"}, expander.relations)

	w = serve(NewHTTPHandler(svc, fixedIdentity), http.MethodPost, "/api/v1/search?expand=author", `{"entityType":"posts"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "expand", decodeError(t, w).Error.Issues[0].Path)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    ErrorCode
		message string
	}{
		{"validation", NewValidationError("limit", "must be between 1 and 100"), http.StatusBadRequest, ErrCodeValidation, "invalid search request: limit: must be between 1 and 100"},
		{"scope", &ScopeViolation{Entity: domain.EntityTypeUsers}, http.StatusForbidden, ErrCodeScopeViolation, `scope does not permit entity "users"`},
		{"execution", NewExecutionError(domain.EntityTypePosts, errors.New("pq: password authentication failed")), http.StatusInternalServerError, ErrCodeExecution, "search execution failed for posts"},
		{"timeout", NewExecutionError(domain.EntityTypePosts, fmt.Errorf("query: %w", context.DeadlineExceeded)), http.StatusGatewayTimeout, ErrCodeExecution, "search execution failed for posts"},
		{"unclassified", errors.New("dial tcp 10.0.0.5:5432: connection refused"), http.StatusInternalServerError, ErrCodeExecution, "search execution failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHTTPHandler(&recordingService{err: tc.err}, fixedIdentity)
			w := serve(h, http.MethodPost, "/api/v1/search", `{"entityType":"posts"}`)
			assert.Equal(t, tc.status, w.Code)
			env := decodeError(t, w)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.Equal(t, tc.message, env.Error.Message)
		})
	}
}

func TestHandler_RejectsRequestsWithoutTenant(t *testing.T) {
	svc := &recordingService{}
	h := NewHTTPHandler(svc, func(*http.Request) (uuid.UUID, *Scope, bool) { return uuid.Nil, nil, false })

	w := serve(h, http.MethodPost, "/api/v1/search", `{"entityType":"posts"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "tenant", decodeError(t, w).Error.Issues[0].Path)
	assert.Empty(t, svc.reqs)
}

func TestHandler_MethodAndBody(t *testing.T) {
	svc := &recordingService{}
	h := NewHTTPHandler(svc, fixedIdentity)

	w := serve(h, http.MethodPut, "/api/v1/search", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))

	huge := `{"entityType":"posts","search":"` + strings.Repeat("x", maxRequestBody) + `"}`
	w = serve(h, http.MethodPost, "/api/v1/search", huge)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid search request: request body is too large", decodeError(t, w).Error.Message)
	assert.Empty(t, svc.reqs)
}
