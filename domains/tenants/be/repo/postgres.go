package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/persistence"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// ErrConflict is returned when an insert collides with an existing slug or
// custom domain.
var ErrConflict = errors.New("tenant slug or domain already taken")

// PostgresRepository implements the tenant repository on the shared
// persistence layer for registry deployments that run on Postgres instead of
// Firestore. It does not implement Watch; resolution freshness then relies on
// the stale-while-revalidate cache alone.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	row, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(row), nil
}

func (r *PostgresRepository) FindByDomain(ctx context.Context, domain string) (service.Tenant, error) {
	row, err := r.store.GetByDomain(ctx, domain)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(row), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	row, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(row), nil
}

func (r *PostgresRepository) SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error {
	if err := r.store.SetEffectivePlan(ctx, id, tier.String()); err != nil {
		return mapNotFound(err)
	}
	return nil
}

// Create inserts a tenant row, mapping unique violations on slug or domain to
// ErrConflict. Used by provisioning flows and tests.
func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	row, err := r.store.Create(ctx, toRow(t))
	if err != nil {
		return service.Tenant{}, mapConflict(err)
	}
	return toServiceTenant(row), nil
}

func toRow(t service.Tenant) persistence.TenantRow {
	return persistence.TenantRow{
		TenantID:      t.ID,
		Slug:          t.Slug,
		CustomDomain:  t.CustomDomain,
		DisplayName:   t.DisplayName,
		EffectivePlan: t.EffectivePlan.String(),
		PublicData:    t.PublicData,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toServiceTenant(row persistence.TenantRow) service.Tenant {
	return service.Tenant{
		ID:            row.TenantID,
		Slug:          row.Slug,
		CustomDomain:  row.CustomDomain,
		DisplayName:   row.DisplayName,
		EffectivePlan: plan.ParseTier(row.EffectivePlan),
		PublicData:    row.PublicData,
		UpdatedAt:     row.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "slug") || strings.Contains(pgErr.ConstraintName, "domain") {
			return ErrConflict
		}
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
