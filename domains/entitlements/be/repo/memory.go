package repo

import (
	"context"
	"sync"
	"time"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
)

// MemoryRepository is an in-memory implementation suitable for tests and
// early development. Put mirrors the store-side write contract: once
// trialEverUsed is true it can never be reset, regardless of what the caller
// passes.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]service.UserEntitlementRecord
	subs    map[string][]chan service.UserEntitlementRecord
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]service.UserEntitlementRecord),
		subs:    make(map[string][]chan service.UserEntitlementRecord),
	}
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (service.UserEntitlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return service.UserEntitlementRecord{}, service.ErrNotFound
	}
	return rec, nil
}

// Put stores the record and pushes it to active watchers. The write-once
// trialEverUsed invariant is enforced here, at the write path.
func (r *MemoryRepository) Put(rec service.UserEntitlementRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[rec.UserID]; ok && existing.TrialEverUsed {
		rec.TrialEverUsed = true
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	r.records[rec.UserID] = rec
	for _, ch := range r.subs[rec.UserID] {
		notify(ch, rec)
	}
}

// notify delivers without ever blocking the writer: when a watcher's buffer is
// full the oldest pending value is dropped, keeping last-delivered-wins.
func notify(ch chan service.UserEntitlementRecord, rec service.UserEntitlementRecord) {
	for {
		select {
		case ch <- rec:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (r *MemoryRepository) Watch(ctx context.Context, userID string) (<-chan service.UserEntitlementRecord, error) {
	ch := make(chan service.UserEntitlementRecord, 8)

	r.mu.Lock()
	r.subs[userID] = append(r.subs[userID], ch)
	rec, ok := r.records[userID]
	r.mu.Unlock()

	if ok {
		ch <- rec
	}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		subs := r.subs[userID]
		for i, sub := range subs {
			if sub == ch {
				r.subs[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
