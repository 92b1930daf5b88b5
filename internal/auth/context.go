package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/rpattn/contentql/internal/search"
)

type contextKey string

const (
	organizationIDKey contextKey = "organizationID"
	scopeKey          contextKey = "searchScope"
)

// ContextWithOrganizationID returns a new context that carries the authenticated organization scope.
func ContextWithOrganizationID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, organizationIDKey, id)
}

// OrganizationIDFromContext retrieves the authenticated organization scope from the context, if any.
func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(organizationIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ContextWithScope attaches the caller's search scope.
func ContextWithScope(ctx context.Context, scope *search.Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext returns the caller's search scope, nil when unrestricted.
func ScopeFromContext(ctx context.Context) *search.Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey).(*search.Scope)
	return scope
}

// Identity reads the tenant and scope attached by Middleware. It satisfies
// search.IdentityFunc.
func Identity(r *http.Request) (uuid.UUID, *search.Scope, bool) {
	tenant, ok := OrganizationIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, nil, false
	}
	return tenant, ScopeFromContext(r.Context()), true
}
