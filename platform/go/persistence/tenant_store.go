package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("record not found")

// TenantsTable is the tenant registry table.
const TenantsTable = "tenants"

// TenantRow represents one tenant registry row. Slug is unique; custom_domain
// is unique when present (partial unique index).
type TenantRow struct {
	TenantID      uuid.UUID      `db:"tenant_id"`
	Slug          string         `db:"slug"`
	CustomDomain  *string        `db:"custom_domain"`
	DisplayName   *string        `db:"display_name"`
	EffectivePlan string         `db:"effective_plan"`
	PublicData    map[string]any `db:"public_data"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// TenantStore provides access to the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes migrations already created the
// table.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = "tenant_id, slug, custom_domain, display_name, effective_plan, public_data, updated_at"

// Create inserts a tenant row. Unique violations on slug or custom_domain
// surface as pgconn.PgError 23505 for the repository layer to map.
func (s *TenantStore) Create(ctx context.Context, row TenantRow) (TenantRow, error) {
	if row.TenantID == uuid.Nil {
		return TenantRow{}, errors.New("tenant id is required")
	}
	if row.EffectivePlan == "" {
		row.EffectivePlan = "free"
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (tenant_id, slug, custom_domain, display_name, effective_plan, public_data, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, now())
        RETURNING %s`, TenantsTable, tenantColumns)

	return s.scanOne(s.pool.QueryRow(ctx, query,
		row.TenantID, row.Slug, row.CustomDomain, row.DisplayName, row.EffectivePlan, row.PublicData))
}

// GetBySlug looks up the single row claiming the slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, tenantColumns, TenantsTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, slug))
}

// GetByDomain looks up the single row claiming the custom domain.
func (s *TenantStore) GetByDomain(ctx context.Context, domain string) (TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE custom_domain = $1`, tenantColumns, TenantsTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, domain))
}

// Get looks up a row by tenant id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1`, tenantColumns, TenantsTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// SetEffectivePlan overwrites the plan projection column for one tenant.
func (s *TenantStore) SetEffectivePlan(ctx context.Context, id uuid.UUID, tier string) error {
	query := fmt.Sprintf(`UPDATE %s SET effective_plan = $2, updated_at = now() WHERE tenant_id = $1`, TenantsTable)
	tag, err := s.pool.Exec(ctx, query, id, tier)
	if err != nil {
		return fmt.Errorf("update effective plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TenantStore) scanOne(row pgx.Row) (TenantRow, error) {
	var out TenantRow
	err := row.Scan(&out.TenantID, &out.Slug, &out.CustomDomain, &out.DisplayName,
		&out.EffectivePlan, &out.PublicData, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRow{}, ErrNotFound
		}
		return TenantRow{}, fmt.Errorf("scan tenant row: %w", err)
	}
	return out, nil
}
