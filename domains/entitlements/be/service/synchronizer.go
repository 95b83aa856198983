package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/platform/go/cache"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// PlanWriter is the single write capability the synchronizer needs on the
// tenant store: a one-field, one-document overwrite. Implemented by the
// tenants repository.
type PlanWriter interface {
	SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error
}

// Synchronizer propagates the computed effective tier into the tenant's own
// document so tenant-scoped reads elsewhere do not re-derive entitlement.
//
// The last synchronized tier is tracked in the cache rather than read back
// from the store, avoiding a read-before-write round trip. A failed write is
// logged and swallowed; it retries naturally on the next evaluation triggered
// by normal traffic, never in a tight loop. The synchronized copy is a
// secondary projection: user-facing entitlement always comes from the fresh
// computation, never from this field.
type Synchronizer struct {
	writer PlanWriter
	synced *cache.Cache[plan.Tier]
	ttl    time.Duration
	logger *zap.Logger
}

// NewSynchronizer constructs a Synchronizer. The cache instance is injected
// by the application root and may be shared with nothing else.
func NewSynchronizer(writer PlanWriter, synced *cache.Cache[plan.Tier], ttl time.Duration, logger *zap.Logger) *Synchronizer {
	if writer == nil {
		panic("plan writer is required")
	}
	if synced == nil {
		panic("synced-tier cache is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Synchronizer{writer: writer, synced: synced, ttl: ttl, logger: logger}
}

// Sync writes effective.Tier onto the tenant document when it differs from
// the last value this process synchronized. Errors are logged, never
// returned: callers treat Sync as fire-and-forget.
func (s *Synchronizer) Sync(ctx context.Context, tenantID uuid.UUID, effective EffectiveEntitlement) {
	if tenantID == uuid.Nil {
		return
	}

	key := "synced-plan:" + tenantID.String()
	if last, ok := s.synced.Get(key); ok && last == effective.Tier {
		return
	}

	if err := s.writer.SetEffectivePlan(ctx, tenantID, effective.Tier); err != nil {
		// Non-fatal: the projection self-heals on the next evaluation.
		s.logger.Warn("effective plan sync failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("tier", effective.Tier.String()),
			zap.Error(err))
		return
	}

	s.synced.Set(key, effective.Tier, s.ttl)
	s.logger.Debug("effective plan synchronized",
		zap.String("tenant_id", tenantID.String()),
		zap.String("tier", effective.Tier.String()))
}
