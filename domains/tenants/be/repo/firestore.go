// Package repo adapts the tenant document store to the resolver service.
package repo

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// TenantsCollection holds one document per tenant, keyed by tenant id.
// Both slug and customDomain are unique across the collection; uniqueness is
// owned by the provisioning flow, this repository only reads by them.
const TenantsCollection = "tenants"

// FirestoreRepository implements the tenant repository on Firestore.
type FirestoreRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreRepository constructs a repository backed by the given client.
func NewFirestoreRepository(client *firestore.Client, logger *zap.Logger) *FirestoreRepository {
	if client == nil {
		panic("firestore client is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &FirestoreRepository{client: client, logger: logger}
}

func (r *FirestoreRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	return r.findByField(ctx, "slug", slug)
}

func (r *FirestoreRepository) FindByDomain(ctx context.Context, domain string) (service.Tenant, error) {
	return r.findByField(ctx, "customDomain", domain)
}

func (r *FirestoreRepository) findByField(ctx context.Context, field, value string) (service.Tenant, error) {
	docs, err := r.client.Collection(TenantsCollection).
		Where(field, "==", value).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return service.Tenant{}, fmt.Errorf("query tenants by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return service.Tenant{}, service.ErrNotFound
	}
	return decodeTenant(docs[0])
}

func (r *FirestoreRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	snap, err := r.client.Collection(TenantsCollection).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return service.Tenant{}, service.ErrNotFound
		}
		return service.Tenant{}, fmt.Errorf("get tenant document: %w", err)
	}
	return decodeTenant(snap)
}

// SetEffectivePlan overwrites the plan projection field. Single-document,
// single-field set; atomicity comes from the store, nothing is orchestrated
// here.
func (r *FirestoreRepository) SetEffectivePlan(ctx context.Context, id uuid.UUID, tier plan.Tier) error {
	_, err := r.client.Collection(TenantsCollection).Doc(id.String()).Update(ctx, []firestore.Update{
		{Path: "effectivePlan", Value: tier.String()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return service.ErrNotFound
		}
		return fmt.Errorf("update effective plan: %w", err)
	}
	return nil
}

// Watch streams tenant snapshots on every remote change; the channel closes
// when ctx ends.
func (r *FirestoreRepository) Watch(ctx context.Context, id uuid.UUID) (<-chan service.Tenant, error) {
	iter := r.client.Collection(TenantsCollection).Doc(id.String()).Snapshots(ctx)

	out := make(chan service.Tenant, 1)
	go func() {
		defer close(out)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					r.logger.Warn("tenant watch ended",
						zap.String("tenant_id", id.String()), zap.Error(err))
				}
				return
			}
			if !snap.Exists() {
				continue
			}
			t, err := decodeTenant(snap)
			if err != nil {
				r.logger.Warn("skipping malformed tenant push",
					zap.String("tenant_id", id.String()), zap.Error(err))
				continue
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeTenant(snap *firestore.DocumentSnapshot) (service.Tenant, error) {
	id, err := uuid.Parse(snap.Ref.ID)
	if err != nil {
		return service.Tenant{}, fmt.Errorf("tenant document id %q is not a uuid", snap.Ref.ID)
	}

	data := snap.Data()

	t := service.Tenant{ID: id, UpdatedAt: snap.UpdateTime}
	t.Slug, _ = data["slug"].(string)
	if domain, ok := data["customDomain"].(string); ok && domain != "" {
		t.CustomDomain = &domain
	}
	if name, ok := data["displayName"].(string); ok && name != "" {
		t.DisplayName = &name
	}
	if tier, ok := data["effectivePlan"].(string); ok {
		t.EffectivePlan = plan.ParseTier(tier)
	}
	if public, ok := data["publicData"].(map[string]any); ok {
		t.PublicData = public
	}
	return t, nil
}

// Ensure interface compliance.
var (
	_ service.Repository = (*FirestoreRepository)(nil)
	_ service.Watcher    = (*FirestoreRepository)(nil)
)
