package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/domain"
)

const maxRequestBody = 1 << 20

// IdentityFunc extracts the tenant and scope the authorization layer attached
// to a request. ok is false when the request carries no tenant.
type IdentityFunc func(r *http.Request) (tenant uuid.UUID, scope *Scope, ok bool)

// Expander hydrates a named relation into result records in place.
type Expander interface {
	Expand(ctx context.Context, relation string, records []domain.Record) error
}

// Handler serves POST and GET search on /api/v1/search and /api/v1/search/{entity}.
type Handler struct {
	service      Service
	identity     IdentityFunc
	expander     Expander
	logger       *zap.Logger
	queryTimeout time.Duration
	maxPages     int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithExpander(e Expander) HandlerOption {
	return func(h *Handler) { h.expander = e }
}

func WithQueryTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.queryTimeout = d }
}

// WithMaxCompatPages bounds how many cursor pages a page-numbered GET may walk.
func WithMaxCompatPages(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxPages = n
		}
	}
}

func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPHandler builds the search endpoint.
func NewHTTPHandler(service Service, identity IdentityFunc, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:      service,
		identity:     identity,
		logger:       zap.NewNop(),
		queryTimeout: 10 * time.Second,
		maxPages:     10,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant, scope, ok := h.identity(r)
	if !ok {
		WriteError(w, h.logger, NewValidationError("tenant", "organization scope is required"))
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	pathEntity := entityFromPath(r.URL.Path)
	var (
		result domain.SearchResult
		err    error
	)
	switch r.Method {
	case http.MethodPost:
		var req domain.SearchRequest
		req, err = h.decodeBody(r, pathEntity)
		if err == nil {
			result, err = h.service.Search(ctx, tenant, scope, req)
		}
	case http.MethodGet:
		var (
			req  domain.SearchRequest
			page int
		)
		req, page, err = ParseQueryParams(r.URL.Query())
		if err == nil {
			if pathEntity != "" {
				req.EntityType = pathEntity
			}
			result, err = SearchPage(ctx, h.service, tenant, scope, req, page, h.maxPages)
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	if relation := strings.TrimSpace(r.URL.Query().Get("expand")); relation != "" {
		if h.expander == nil {
			WriteError(w, h.logger, NewValidationError("expand", "relation expansion is not available"))
			return
		}
		if err := h.expander.Expand(ctx, relation, result.Results); err != nil {
			WriteError(w, h.logger, err)
			return
		}
	}

	WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) decodeBody(r *http.Request, pathEntity domain.EntityType) (domain.SearchRequest, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return domain.SearchRequest{}, NewValidationError("", "failed to read request body")
	}
	if len(body) > maxRequestBody {
		return domain.SearchRequest{}, NewValidationError("", "request body is too large")
	}
	if pathEntity == "" {
		return ParseRequest(body)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return domain.SearchRequest{}, NewValidationError("", "request body must be a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.SearchRequest{}, NewValidationError("", "request body must contain a single JSON object")
	}
	if existing, ok := obj["entityType"].(string); ok && existing != "" && existing != string(pathEntity) {
		return domain.SearchRequest{}, NewValidationError("entityType", "does not match the %q path", pathEntity)
	}
	obj["entityType"] = string(pathEntity)
	return parseRequestObject(obj)
}

// entityFromPath returns the {entity} segment of /api/v1/search/{entity}.
func entityFromPath(path string) domain.EntityType {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/search/")
	if idx < 0 {
		return ""
	}
	return domain.EntityType(path[idx+len("/search/"):])
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Issues  []Issue   `json:"issues,omitempty"`
}

// WriteError maps search errors onto HTTP statuses. Execution failures are
// logged with their cause and answered with an opaque message.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	body := errorBody{Code: CodeOf(err), Message: err.Error()}
	status := http.StatusInternalServerError

	var validation *ValidationError
	var violation *ScopeViolation
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Issues = validation.Issues
	case errors.As(err, &violation):
		status = http.StatusForbidden
	default:
		var execErr *ExecutionError
		cause := err
		if errors.As(err, &execErr) {
			body.Message = execErr.Error()
			cause = execErr.Unwrap()
		} else {
			body.Message = "search execution failed"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		if logger != nil {
			logger.Error("[HTTP] search failed", zap.Error(cause))
		}
	}
	WriteJSON(w, status, map[string]errorBody{"error": body})
}

// WriteJSON writes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if result, ok := payload.(domain.SearchResult); ok && result.Results == nil {
		result.Results = []domain.Record{}
		payload = result
	}
	_ = json.NewEncoder(w).Encode(payload)
}
