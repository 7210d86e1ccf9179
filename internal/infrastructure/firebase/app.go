package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"supportchat/pkg/config"
	"supportchat/pkg/logger"
)

// credentials prefers inline JSON (deployments) over a key file (local runs).
// With neither set the client falls back to application default credentials.
func credentials(cfg *config.Config) ([]option.ClientOption, error) {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}, nil
	}

	if path := cfg.FirebaseServiceAccountPath; path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("service account file %s: %w", path, err)
		}
		logger.Info("Using Firebase service account from file: %s", path)
		return []option.ClientOption{option.WithCredentialsFile(path)}, nil
	}

	logger.Info("Using application default credentials for Firebase")
	return nil, nil
}

// NewFirestoreClient initializes the Firebase app for the configured project
// and returns its Firestore client. The caller closes it.
func NewFirestoreClient(ctx context.Context, cfg *config.Config) (*firestore.Client, error) {
	opts, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}
