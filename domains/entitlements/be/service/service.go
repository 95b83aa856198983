package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/platform/go/cache"
)

// ErrNotFound means no entitlement record exists for the user.
var ErrNotFound = errors.New("user entitlement record not found")

// Repository abstracts the user document store. The core only ever reads user
// records; all raw-field writes belong to upstream flows.
type Repository interface {
	Get(ctx context.Context, userID string) (UserEntitlementRecord, error)
	// Watch streams record snapshots as the store pushes updates. The first
	// delivery is the current record; the channel closes when ctx ends.
	Watch(ctx context.Context, userID string) (<-chan UserEntitlementRecord, error)
}

// Config carries evaluator tuning.
type Config struct {
	// SnapshotTTL bounds how long a computed entitlement may be served to
	// presentation without re-reading the user record.
	SnapshotTTL time.Duration
	// SyncTimeout bounds the detached plan-projection write.
	SyncTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 30 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 10 * time.Second
	}
}

// Service evaluates user records into effective entitlements. One-shot reads
// and live subscription pushes run through the same evaluation path, so there
// is exactly one code path for "initial load" and "live update".
type Service struct {
	repo      Repository
	sync      *Synchronizer
	snapshots *cache.Cache[EffectiveEntitlement]
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	baseCtx context.Context
}

// New constructs the evaluator. The synchronizer is optional; without it the
// plan projection simply is not maintained by this process.
func New(repo Repository, sync *Synchronizer, snapshots *cache.Cache[EffectiveEntitlement], cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("entitlements repo is required")
	}
	if snapshots == nil {
		panic("snapshot cache is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	cfg.applyDefaults()
	return &Service{
		repo:      repo,
		sync:      sync,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		baseCtx:   context.Background(),
	}
}

// Start scopes detached synchronizer writes to ctx.
func (s *Service) Start(ctx context.Context) {
	s.baseCtx = ctx
}

// WithClock injects a time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Evaluate returns the user's effective entitlement. A snapshot within its
// short TTL is served as-is for presentation; otherwise the record is read
// and evaluated fresh. The snapshot cache is never the system of record.
func (s *Service) Evaluate(ctx context.Context, userID string) (EffectiveEntitlement, error) {
	key := "entitlement:" + userID
	if eff, ok := s.snapshots.Get(key); ok {
		return eff, nil
	}

	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return EffectiveEntitlement{}, ErrNotFound
		}
		return EffectiveEntitlement{}, fmt.Errorf("user store lookup: %w", err)
	}

	return s.evaluate(rec), nil
}

// Subscribe streams effective entitlements for the user, re-evaluating on
// every pushed record snapshot. No in-flight evaluation is cancelled; a newer
// push simply supersedes an older result, so ordering is last delivered wins.
// The stream ends when ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan EffectiveEntitlement, error) {
	records, err := s.repo.Watch(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("watch user record: %w", err)
	}

	out := make(chan EffectiveEntitlement, 1)
	go func() {
		defer close(out)
		for rec := range records {
			eff := s.evaluate(rec)
			select {
			case out <- eff:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// evaluate is the single evaluation path: compute, observe inconsistencies,
// cache the presentation snapshot, and kick the plan projection sync.
func (s *Service) evaluate(rec UserEntitlementRecord) EffectiveEntitlement {
	now := s.now()
	eff := ComputeEffective(rec, now)

	for _, note := range Inconsistencies(rec, now) {
		s.logger.Warn("inconsistent entitlement record",
			zap.String("user_id", rec.UserID),
			zap.String("detail", note))
	}

	s.snapshots.Set("entitlement:"+rec.UserID, eff, s.cfg.SnapshotTTL)

	if s.sync != nil {
		// Fire-and-forget from the caller's perspective; awaited and logged
		// inside the synchronizer goroutine.
		go func() {
			ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.SyncTimeout)
			defer cancel()
			s.sync.Sync(ctx, rec.TenantID, eff)
		}()
	}

	return eff
}
