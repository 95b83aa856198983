package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// NewApp creates a Firebase App instance. When credentialsPath is empty the
// SDK falls back to Application Default Credentials.
func NewApp(ctx context.Context, credentialsPath string) (*firebase.App, error) {
	if credentialsPath != "" {
		return firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	}
	return firebase.NewApp(ctx, nil)
}

// InitClients initializes the Firebase App and returns the Firestore and Auth
// clients the resolution/entitlement services are built on: Firestore holds
// the tenant and user documents, Auth verifies bearer tokens on the
// entitlement endpoint.
func InitClients(ctx context.Context, credentialsPath string) (*firebase.App, *firestore.Client, *firebaseauth.Client, error) {
	app, err := NewApp(ctx, credentialsPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize firestore client: %w", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		_ = fs.Close()
		return nil, nil, nil, fmt.Errorf("initialize firebase auth: %w", err)
	}

	return app, fs, fbAuth, nil
}
