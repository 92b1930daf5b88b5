package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/search"
)

const maxRequestBody = 1 << 20

type Handler struct {
	service  *Service
	identity search.IdentityFunc
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHTTPHandler serves POST /api/v1/export?format=csv|xlsx with a search
// request body.
func NewHTTPHandler(service *Service, identity search.IdentityFunc, timeout time.Duration, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, identity: identity, timeout: timeout, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant, scope, ok := h.identity(r)
	if !ok {
		search.WriteError(w, h.logger, search.NewValidationError("tenant", "organization scope is required"))
		return
	}
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		search.WriteError(w, h.logger, err)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil || len(body) > maxRequestBody {
		search.WriteError(w, h.logger, search.NewValidationError("", "request body is unreadable or too large"))
		return
	}
	req, err := search.ParseRequest(body)
	if err != nil {
		search.WriteError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	// Buffered so a failure halfway through still gets a JSON error response.
	var buf bytes.Buffer
	summary, err := h.service.Export(ctx, tenant, scope, req, format, &buf)
	if err != nil {
		search.WriteError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-export.%s", req.EntityType, format)))
	w.Header().Set("X-Export-Rows", strconv.Itoa(summary.Rows))
	w.Header().Set("X-Export-Truncated", strconv.FormatBool(summary.Truncated))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
