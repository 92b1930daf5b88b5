package middleware

import (
	"net/http"

	"github.com/rpattn/contentql/internal/entityloader"
	"github.com/rpattn/contentql/internal/search"
)

// DataLoaderMiddleware attaches a fresh author loader to every request so
// batching never crosses request or tenant boundaries.
func DataLoaderMiddleware(svc search.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewAuthorLoader(svc)
			ctx := entityloader.ContextWithAuthorLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
