package middleware

import (
	"context"
	"net/http"

	"github.com/bazaarhq/storefront-saas/platform/go/tenant"
)

// Resolver defines the minimal lookup capability required to populate the
// request's tenant context. Implemented by the tenant resolver service.
type Resolver interface {
	ResolveRequest(ctx context.Context, host, pathSlug string) (tenant.Resolved, error)
}

// SlugHeader names the header shared-host storefront clients use to identify
// their store on routes whose path carries no slug.
const SlugHeader = "X-Storefront-Slug"

// WithResolvedTenant resolves the request host (plus the optional slug header)
// once and attaches tenant.Resolved to the context so downstream handlers
// never re-run resolution. Best effort: a request that maps to no store passes
// through unchanged, and the endpoints behind this middleware decide whether
// tenant context is required.
func WithResolvedTenant(resolver Resolver) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolved, err := resolver.ResolveRequest(r.Context(), r.Host, r.Header.Get(SlugHeader))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithResolved(r.Context(), resolved)))
		})
	}
}
