package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// Resolved captures the tenant routing metadata for a request once the host
// and optional path slug have been mapped to exactly one store.
// It is attached to the context by middleware so downstream handlers never
// re-run resolution.
type Resolved struct {
	TenantID      uuid.UUID
	Slug          string
	CustomDomain  string
	Mode          HostMode
	EffectivePlan plan.Tier
}

type ctxKey string

const resolvedKey ctxKey = "STOREFRONT_RESOLVED_TENANT"

// WithResolved returns a derived context carrying the resolved tenant.
func WithResolved(ctx context.Context, r Resolved) context.Context {
	return context.WithValue(ctx, resolvedKey, r)
}

// FromContext extracts the resolved tenant and a boolean indicating presence.
func FromContext(ctx context.Context) (Resolved, bool) {
	v := ctx.Value(resolvedKey)
	if v == nil {
		return Resolved{}, false
	}

	r, ok := v.(Resolved)
	return r, ok
}
