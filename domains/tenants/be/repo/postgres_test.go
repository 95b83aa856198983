package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlassets "github.com/bazaarhq/storefront-saas/database"
	"github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/persistence"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping tenant repository integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	_, err = pool.Exec(ctx, sqlassets.TenantsSQL)
	require.NoError(t, err)

	store, err := persistence.NewTenantStore(pool)
	require.NoError(t, err)
	repo := NewPostgresRepository(store)

	domain := "shop.acme.example"
	created, err := repo.Create(ctx, service.Tenant{
		ID:            uuid.New(),
		Slug:          "acme",
		CustomDomain:  &domain,
		EffectivePlan: plan.TierFree,
		PublicData:    map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)
	require.Equal(t, "acme", created.Slug)
	require.Equal(t, plan.TierFree, created.EffectivePlan)

	bySlug, err := repo.FindBySlug(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySlug.ID)
	require.Equal(t, map[string]any{"theme": "dark"}, bySlug.PublicData)

	byDomain, err := repo.FindByDomain(ctx, domain)
	require.NoError(t, err)
	require.Equal(t, created.ID, byDomain.ID)

	// Plan projection write + read back through the repository mapping.
	require.NoError(t, repo.SetEffectivePlan(ctx, created.ID, plan.TierPremium))
	updated, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, plan.TierPremium, updated.EffectivePlan)

	// Lookups that match nothing surface the terminal sentinel.
	_, err = repo.FindBySlug(ctx, "ghost")
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = repo.FindByDomain(ctx, "shop.ghost.example")
	require.ErrorIs(t, err, service.ErrNotFound)
	err = repo.SetEffectivePlan(ctx, uuid.New(), plan.TierPlus)
	require.ErrorIs(t, err, service.ErrNotFound)

	// Slug and domain uniqueness surface as conflicts, not raw pg errors.
	_, err = repo.Create(ctx, service.Tenant{ID: uuid.New(), Slug: "acme"})
	require.ErrorIs(t, err, ErrConflict)
	_, err = repo.Create(ctx, service.Tenant{ID: uuid.New(), Slug: "other", CustomDomain: &domain})
	require.ErrorIs(t, err, ErrConflict)
}
