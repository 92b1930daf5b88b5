package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/contentql/internal/search"
)

const (
	OrganizationHeader = "X-Organization-ID"
	ScopeHeader        = "X-Search-Scope"
)

// Middleware turns the organization and scope headers set by the upstream
// gateway into request context. It does not authenticate; the gateway is
// trusted to have done so.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(OrganizationHeader))
		if raw == "" {
			http.Error(w, "missing "+OrganizationHeader+" header", http.StatusUnauthorized)
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil || orgID == uuid.Nil {
			http.Error(w, "invalid "+OrganizationHeader+" header", http.StatusBadRequest)
			return
		}

		ctx := ContextWithOrganizationID(r.Context(), orgID)
		if rawScope := strings.TrimSpace(r.Header.Get(ScopeHeader)); rawScope != "" {
			var scope search.Scope
			dec := json.NewDecoder(strings.NewReader(rawScope))
			dec.UseNumber()
			dec.DisallowUnknownFields()
			if err := dec.Decode(&scope); err != nil {
				http.Error(w, "invalid "+ScopeHeader+" header", http.StatusBadRequest)
				return
			}
			ctx = ContextWithScope(ctx, &scope)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
