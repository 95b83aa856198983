package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// MemoryRepository is a simple in-memory implementation suitable for tests
// and early development. Slug and domain uniqueness hold by construction.
type MemoryRepository struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]service.Tenant
	bySlug   map[string]uuid.UUID
	byDomain map[string]uuid.UUID
	subs     map[uuid.UUID][]chan service.Tenant
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[uuid.UUID]service.Tenant),
		bySlug:   make(map[string]uuid.UUID),
		byDomain: make(map[string]uuid.UUID),
		subs:     make(map[uuid.UUID][]chan service.Tenant),
	}
}

// Put inserts or replaces a tenant, reindexing slug and domain.
func (r *MemoryRepository) Put(t service.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[t.ID]; ok {
		delete(r.bySlug, prev.Slug)
		if prev.CustomDomain != nil {
			delete(r.byDomain, *prev.CustomDomain)
		}
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	r.byID[t.ID] = t
	r.bySlug[t.Slug] = t.ID
	if t.CustomDomain != nil {
		r.byDomain[*t.CustomDomain] = t.ID
	}
	for _, ch := range r.subs[t.ID] {
		notify(ch, t)
	}
}

// notify delivers without ever blocking the writer: when a watcher's buffer is
// full the oldest pending value is dropped, keeping last-delivered-wins.
func notify(ch chan service.Tenant, t service.Tenant) {
	for {
		select {
		case ch <- t:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (r *MemoryRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) FindByDomain(ctx context.Context, domain string) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byDomain[domain]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	t.EffectivePlan = tier
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	for _, ch := range r.subs[id] {
		notify(ch, t)
	}
	return nil
}

func (r *MemoryRepository) Watch(ctx context.Context, id uuid.UUID) (<-chan service.Tenant, error) {
	ch := make(chan service.Tenant, 8)

	r.mu.Lock()
	r.subs[id] = append(r.subs[id], ch)
	t, ok := r.byID[id]
	if ok {
		ch <- t
	}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		subs := r.subs[id]
		for i, sub := range subs {
			if sub == ch {
				r.subs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Ensure interface compliance.
var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ service.Watcher    = (*MemoryRepository)(nil)
)
