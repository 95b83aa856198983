package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

func TestMemoryRepositoryGet(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Put(service.UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierPlus})

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, plan.TierPlus, rec.PlanTier)

	_, err = repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestMemoryRepositoryTrialEverUsedIsMonotonic(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Put(service.UserEntitlementRecord{UserID: "u1", TrialEverUsed: true})

	// A later write trying to flip the flag back is corrected at the write
	// path: once true, always true.
	repo.Put(service.UserEntitlementRecord{UserID: "u1", TrialEverUsed: false})

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, rec.TrialEverUsed)
}

func TestMemoryRepositoryWatchDeliversInitialAndUpdates(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Put(service.UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierFree})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := repo.Watch(ctx, "u1")
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, plan.TierFree, first.PlanTier)

	repo.Put(service.UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierPremium})
	second := <-ch
	require.Equal(t, plan.TierPremium, second.PlanTier)
}

func TestMemoryRepositoryPutNeverBlocksOnSlowWatcher(t *testing.T) {
	repo := NewMemoryRepository()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := repo.Watch(ctx, "u1")
	require.NoError(t, err)

	// Far more writes than the watcher buffer holds, with nobody reading.
	// Older pending values are dropped; the writer must never stall.
	tiers := []plan.Tier{plan.TierFree, plan.TierPlus, plan.TierPremium}
	for i := 0; i < 20; i++ {
		repo.Put(service.UserEntitlementRecord{UserID: "u1", PlanTier: tiers[i%len(tiers)]})
	}

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, tiers[19%len(tiers)], rec.PlanTier)

	// Drain what survived: the newest write is the last value delivered.
	var last service.UserEntitlementRecord
	for {
		select {
		case last = <-ch:
			continue
		default:
		}
		break
	}
	require.Equal(t, rec.PlanTier, last.PlanTier)
}

func TestMemoryRepositoryWatchClosesOnContextEnd(t *testing.T) {
	repo := NewMemoryRepository()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := repo.Watch(ctx, "u1")
	require.NoError(t, err)

	cancel()
	for range ch {
	}
}
