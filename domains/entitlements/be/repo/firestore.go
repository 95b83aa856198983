package repo

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
)

// UsersCollection is the Firestore collection holding one document per user.
const UsersCollection = "users"

// FirestoreRepository reads user entitlement records from Firestore. The core
// never writes user documents; raw fields belong to upstream flows.
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

func (r *FirestoreRepository) Get(ctx context.Context, userID string) (service.UserEntitlementRecord, error) {
	snap, err := r.client.Collection(UsersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return service.UserEntitlementRecord{}, service.ErrNotFound
		}
		return service.UserEntitlementRecord{}, fmt.Errorf("get user document: %w", err)
	}
	return r.decode(userID, snap)
}

// Watch streams record snapshots on every remote change. The Firestore
// listener delivers the current document first, so subscribers get an initial
// value without a separate read. The channel closes when ctx ends.
func (r *FirestoreRepository) Watch(ctx context.Context, userID string) (<-chan service.UserEntitlementRecord, error) {
	iter := r.client.Collection(UsersCollection).Doc(userID).Snapshots(ctx)

	out := make(chan service.UserEntitlementRecord, 1)
	go func() {
		defer close(out)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					r.logger.Warn("user record watch ended",
						zap.String("user_id", userID), zap.Error(err))
				}
				return
			}
			if !snap.Exists() {
				continue
			}
			rec, err := r.decode(userID, snap)
			if err != nil {
				r.logger.Warn("skipping malformed user record push",
					zap.String("user_id", userID), zap.Error(err))
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *FirestoreRepository) decode(userID string, snap *firestore.DocumentSnapshot) (service.UserEntitlementRecord, error) {
	rec, err := NormalizeUserRecord(userID, snap.Data())
	if err != nil {
		return service.UserEntitlementRecord{}, err
	}
	rec.UpdatedAt = snap.UpdateTime
	return rec, nil
}

// Ensure interface compliance.
var _ service.Repository = (*FirestoreRepository)(nil)
