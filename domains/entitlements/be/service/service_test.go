package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/platform/go/cache"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// fakeRepo is a minimal in-memory impl of Repository for tests.
type fakeRepo struct {
	mu      sync.Mutex
	rec     UserEntitlementRecord
	found   bool
	getErr  error
	gets    int
	pushes  chan UserEntitlementRecord
	watches int
}

func (f *fakeRepo) Get(ctx context.Context, userID string) (UserEntitlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return UserEntitlementRecord{}, f.getErr
	}
	if !f.found {
		return UserEntitlementRecord{}, ErrNotFound
	}
	return f.rec, nil
}

func (f *fakeRepo) Watch(ctx context.Context, userID string) (<-chan UserEntitlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches++
	return f.pushes, nil
}

func (f *fakeRepo) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// planWriterSpy records SetEffectivePlan calls.
type planWriterSpy struct {
	mu     sync.Mutex
	writes []plan.Tier
	err    error
}

func (w *planWriterSpy) SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, tier)
	return nil
}

func (w *planWriterSpy) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func newTestService(repo Repository) *Service {
	snapshots := cache.New[EffectiveEntitlement]()
	return New(repo, nil, snapshots, Config{}, zap.NewNop())
}

func TestEvaluateOneShot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		found: true,
		rec: UserEntitlementRecord{
			UserID:        "u1",
			PlanTier:      plan.TierPlus,
			TrialEngaged:  true,
			TrialEndsAt:   ptr(now.Add(time.Hour)),
			TrialEverUsed: true,
		},
	}
	svc := newTestService(repo).WithClock(func() time.Time { return now })

	eff, err := svc.Evaluate(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, plan.TierPlus, eff.Tier)
	require.True(t, eff.TrialActive)
	require.Equal(t, 1, repo.getCount())
}

func TestEvaluateServesSnapshotWithinTTL(t *testing.T) {
	repo := &fakeRepo{found: true, rec: UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierPremium, PlanActive: true}}
	svc := newTestService(repo)

	first, err := svc.Evaluate(context.Background(), "u1")
	require.NoError(t, err)
	second, err := svc.Evaluate(context.Background(), "u1")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, repo.getCount(), "snapshot within TTL must not re-read the store")
}

func TestEvaluateNotFound(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	_, err := svc.Evaluate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateWrapsTransientErrors(t *testing.T) {
	boom := errors.New("store unreachable")
	svc := newTestService(&fakeRepo{getErr: boom})

	_, err := svc.Evaluate(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestSubscribeReEvaluatesEveryPush(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pushes := make(chan UserEntitlementRecord, 4)
	repo := &fakeRepo{pushes: pushes}
	svc := newTestService(repo).WithClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)

	pushes <- UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierFree}
	eff := <-out
	require.Equal(t, plan.TierFree, eff.Tier)
	require.False(t, eff.TrialActive)

	pushes <- UserEntitlementRecord{
		UserID: "u1", PlanTier: plan.TierPlus,
		TrialEngaged: true, TrialEndsAt: ptr(now.Add(time.Hour)), TrialEverUsed: true,
	}
	eff = <-out
	require.Equal(t, plan.TierPlus, eff.Tier)
	require.True(t, eff.TrialActive, "each push runs the same evaluation path as one-shot reads")

	close(pushes)
	_, open := <-out
	require.False(t, open, "output closes when the record stream ends")
}

func TestSynchronizerWritesOnlyOnTierChange(t *testing.T) {
	writer := &planWriterSpy{}
	syncer := NewSynchronizer(writer, cache.New[plan.Tier](), time.Hour, zap.NewNop())
	tenantID := uuid.New()

	syncer.Sync(context.Background(), tenantID, EffectiveEntitlement{Tier: plan.TierPlus})
	require.Equal(t, 1, writer.count())

	// Same tier again: tracked via the cache, no read-before-write, no write.
	syncer.Sync(context.Background(), tenantID, EffectiveEntitlement{Tier: plan.TierPlus})
	require.Equal(t, 1, writer.count())

	syncer.Sync(context.Background(), tenantID, EffectiveEntitlement{Tier: plan.TierPremium})
	require.Equal(t, 2, writer.count())
}

func TestSynchronizerSwallowsFailuresAndRetriesNextCycle(t *testing.T) {
	writer := &planWriterSpy{err: errors.New("write denied")}
	syncer := NewSynchronizer(writer, cache.New[plan.Tier](), time.Hour, zap.NewNop())
	tenantID := uuid.New()

	// Failure is logged, not surfaced, and the tracked value stays unset.
	syncer.Sync(context.Background(), tenantID, EffectiveEntitlement{Tier: plan.TierPlus})

	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	// The next evaluation cycle retries naturally.
	syncer.Sync(context.Background(), tenantID, EffectiveEntitlement{Tier: plan.TierPlus})
	require.Equal(t, 1, writer.count())
}

func TestSynchronizerIgnoresMissingTenant(t *testing.T) {
	writer := &planWriterSpy{}
	syncer := NewSynchronizer(writer, cache.New[plan.Tier](), time.Hour, zap.NewNop())

	syncer.Sync(context.Background(), uuid.Nil, EffectiveEntitlement{Tier: plan.TierPlus})
	require.Zero(t, writer.count())
}
