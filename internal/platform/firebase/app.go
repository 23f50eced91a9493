package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// ErrMissingProjectID is returned when no project can be resolved for the
// Firebase app.
var ErrMissingProjectID = errors.New("firebase: project id is required")

// Config holds the settings needed to reach Firestore.
type Config struct {
	ProjectID string
	// CredentialsFile is an optional service account JSON path. When empty the
	// application default credentials (or FIRESTORE_EMULATOR_HOST) are used.
	CredentialsFile string
}

// Clients holds the Firebase-backed clients the service uses.
type Clients struct {
	Firestore *firestore.Client
}

// NewClients initializes the Firebase app and its Firestore client.
func NewClients(ctx context.Context, cfg Config) (*Clients, error) {
	if cfg.ProjectID == "" {
		return nil, ErrMissingProjectID
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Clients{Firestore: fs}, nil
}

func clientOptions(cfg Config) ([]option.ClientOption, error) {
	if cfg.CredentialsFile == "" {
		return nil, nil
	}
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentialsJSON(creds)}, nil
}

// Close releases the Firestore connection.
func (c *Clients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}
