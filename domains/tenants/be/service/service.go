package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/platform/go/cache"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
	"github.com/bazaarhq/storefront-saas/platform/go/tenant"
)

// Errors returned by the resolver.
var (
	// ErrNoSlugProvided means a shared-host request arrived without a path
	// slug. This is a configuration error, fatal to the current resolution.
	ErrNoSlugProvided = errors.New("no slug provided on shared host")
	// ErrNotFound means no tenant claims the slug or domain. Recoverable at
	// the UI level only; never retried automatically.
	ErrNotFound = errors.New("tenant not found")
)

// Tenant is the domain view of a store record.
type Tenant struct {
	ID            uuid.UUID
	Slug          string
	CustomDomain  *string
	DisplayName   *string
	EffectivePlan plan.Tier
	PublicData    map[string]any
	UpdatedAt     time.Time
}

// RequestContext is the routing input for one resolution.
type RequestContext struct {
	Host     string
	PathSlug string
}

// Repository abstracts the tenant document store.
type Repository interface {
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	FindByDomain(ctx context.Context, domain string) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	// SetEffectivePlan overwrites the synchronized plan projection on the
	// tenant document. Only the entitlement synchronizer calls this.
	SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error
}

// Watcher is implemented by repositories that can push tenant record updates.
// Each delivered value is an immutable snapshot; the channel closes when ctx
// ends.
type Watcher interface {
	Watch(ctx context.Context, id uuid.UUID) (<-chan Tenant, error)
}

// Config carries resolver tuning.
type Config struct {
	// SlugTTL bounds shared-host cache entries; slugs can be renamed, so keep
	// this short.
	SlugTTL time.Duration
	// DomainTTL bounds custom-domain entries; the mapping changes rarely, so
	// these live much longer and are refreshed in the background.
	DomainTTL time.Duration
	// FetchTimeout bounds background refreshes, which run detached from the
	// triggering request.
	FetchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SlugTTL <= 0 {
		c.SlugTTL = 2 * time.Minute
	}
	if c.DomainTTL <= 0 {
		c.DomainTTL = time.Hour
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// snapshotEntry is the persisted shape of the last resolved custom-domain
// tenant.
type snapshotEntry struct {
	Domain string `json:"domain"`
	Tenant Tenant `json:"tenant"`
}

// Service resolves an inbound host/path to exactly one tenant.
type Service struct {
	repo       Repository
	classifier *tenant.Classifier
	cache      *cache.Cache[Tenant]
	snapshot   *cache.SnapshotFile
	cfg        Config
	logger     *zap.Logger

	// baseCtx scopes background refreshes and watch streams to the process,
	// not to any single request.
	baseCtx context.Context
}

// New constructs the resolver. The snapshot file is optional; everything else
// is required.
func New(repo Repository, classifier *tenant.Classifier, c *cache.Cache[Tenant], snapshot *cache.SnapshotFile, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if classifier == nil {
		panic("host classifier is required")
	}
	if c == nil {
		panic("resolution cache is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	cfg.applyDefaults()
	return &Service{
		repo:       repo,
		classifier: classifier,
		cache:      c,
		snapshot:   snapshot,
		cfg:        cfg,
		logger:     logger,
		baseCtx:    context.Background(),
	}
}

// Start scopes background work to ctx. Call once from the application root
// before serving traffic; background refreshes stop when ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.baseCtx = ctx
}

// Resolve maps a request context to a tenant.
//
// Shared-host requests require a path slug and go through the short-TTL slug
// cache with a blocking store lookup on miss. Custom-domain requests go
// through the long-TTL domain cache with stale-while-revalidate: a cached
// value (fresh or stale) is returned immediately while a background refetch
// keeps the entry warm.
func (s *Service) Resolve(ctx context.Context, req RequestContext) (Tenant, error) {
	switch s.classifier.Classify(req.Host) {
	case tenant.ModeSharedHost:
		return s.resolveBySlug(ctx, req.PathSlug)
	default:
		return s.resolveByDomain(ctx, tenant.NormalizeHost(req.Host))
	}
}

// ResolveRequest resolves like Resolve and projects the result into the
// routing carrier attached to request contexts by the tenant middleware.
func (s *Service) ResolveRequest(ctx context.Context, host, pathSlug string) (tenant.Resolved, error) {
	t, err := s.Resolve(ctx, RequestContext{Host: host, PathSlug: pathSlug})
	if err != nil {
		return tenant.Resolved{}, err
	}

	resolved := tenant.Resolved{
		TenantID:      t.ID,
		Slug:          t.Slug,
		Mode:          s.classifier.Classify(host),
		EffectivePlan: t.EffectivePlan,
	}
	if t.CustomDomain != nil {
		resolved.CustomDomain = *t.CustomDomain
	}
	return resolved, nil
}

func (s *Service) resolveBySlug(ctx context.Context, pathSlug string) (Tenant, error) {
	if pathSlug == "" {
		return Tenant{}, ErrNoSlugProvided
	}

	slug, err := tenant.NormalizeSlug(pathSlug)
	if err != nil {
		// A malformed slug can never match a stored tenant; skip the store.
		return Tenant{}, ErrNotFound
	}

	key := "slug:" + slug
	if t, ok := s.cache.Get(key); ok {
		return t, nil
	}

	t, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant store lookup by slug: %w", err)
	}

	s.cache.Set(key, t, s.cfg.SlugTTL)
	return t, nil
}

func (s *Service) resolveByDomain(ctx context.Context, domain string) (Tenant, error) {
	if domain == "" {
		return Tenant{}, ErrNotFound
	}

	key := "domain:" + domain

	if t, fresh, ok := s.cache.GetStale(key); ok {
		// Serve what we have and, when the entry has gone stale, revalidate
		// off the request path. The caller never waits on this refresh.
		if !fresh {
			s.refreshDomainAsync(key, domain)
		}
		return t, nil
	}

	// Cold cache: the persisted snapshot from a previous process paints the
	// tenant while the background refetch runs. Absence is not an error.
	if t, ok := s.loadSnapshot(domain); ok {
		s.cache.Set(key, t, s.cfg.DomainTTL)
		s.refreshDomainAsync(key, domain)
		return t, nil
	}

	t, err := s.repo.FindByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant store lookup by domain: %w", err)
	}

	s.cache.Set(key, t, s.cfg.DomainTTL)
	s.storeSnapshot(domain, t)
	s.watchDomain(domain, t.ID, key)
	return t, nil
}

// refreshDomainAsync refetches the domain mapping in the background. The
// in-flight marker prevents concurrent stale hits from stampeding the store;
// the cache write is last-write-wins, so a faster direct fetch superseding a
// slow refresh is wasted work, not a correctness problem.
func (s *Service) refreshDomainAsync(key, domain string) {
	if !s.cache.TryBeginRefresh(key) {
		return
	}

	go func() {
		defer s.cache.EndRefresh(key)

		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.FetchTimeout)
		defer cancel()

		t, err := s.repo.FindByDomain(ctx, domain)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// The mapping was removed; drop the stale entry so the next
				// request surfaces the terminal not-found state.
				s.cache.Invalidate(key)
				return
			}
			s.logger.Warn("background domain revalidation failed",
				zap.String("domain", domain), zap.Error(err))
			return
		}

		s.cache.Set(key, t, s.cfg.DomainTTL)
		s.storeSnapshot(domain, t)
		s.watchDomain(domain, t.ID, key)
	}()
}

// watchDomain subscribes to pushed tenant record updates when the repository
// supports it, refreshing the cache entry on every delivered snapshot. One
// stream per domain for the process lifetime; "last delivered wins".
func (s *Service) watchDomain(domain string, id uuid.UUID, key string) {
	watcher, ok := s.repo.(Watcher)
	if !ok {
		return
	}
	if !s.cache.TryBeginRefresh("watch:" + key) {
		return // already watching
	}

	go func() {
		defer s.cache.EndRefresh("watch:" + key)

		ch, err := watcher.Watch(s.baseCtx, id)
		if err != nil {
			s.logger.Warn("tenant watch failed to start",
				zap.String("domain", domain), zap.Error(err))
			return
		}
		for t := range ch {
			s.cache.Set(key, t, s.cfg.DomainTTL)
		}
	}()
}

func (s *Service) loadSnapshot(domain string) (Tenant, bool) {
	if s.snapshot == nil {
		return Tenant{}, false
	}
	var entry snapshotEntry
	found, err := s.snapshot.Read(&entry)
	if err != nil {
		s.logger.Warn("read tenant snapshot", zap.Error(err))
		return Tenant{}, false
	}
	if !found || entry.Domain != domain {
		return Tenant{}, false
	}
	return entry.Tenant, true
}

func (s *Service) storeSnapshot(domain string, t Tenant) {
	if s.snapshot == nil {
		return
	}
	if err := s.snapshot.Write(snapshotEntry{Domain: domain, Tenant: t}); err != nil {
		s.logger.Warn("write tenant snapshot", zap.Error(err))
	}
}
