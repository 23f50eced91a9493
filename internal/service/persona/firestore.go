package persona

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
)

const personasCollection = "personas"

// FirestoreStore implements Service on the personas collection. The
// document ID is the persona ID.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Service = (*FirestoreStore)(nil)

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) List(ctx context.Context) ([]Persona, error) {
	docs, err := s.client.Collection(personasCollection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}

	out := make([]Persona, 0, len(docs))
	for _, doc := range docs {
		p, err := fromSnapshot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*Persona, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	doc, err := s.client.Collection(personasCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get persona %s: %w", id, err)
	}
	return fromSnapshot(doc)
}

// Import writes every persona of the catalog in one transaction, replacing
// existing documents with the same ID.
func (s *FirestoreStore) Import(ctx context.Context, c *Catalog) error {
	personas := c.Personas()
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for i := range personas {
			ref := s.client.Collection(personasCollection).Doc(personas[i].ID)
			if err := tx.Set(ref, personas[i]); err != nil {
				return err
			}
		}
		return nil
	})

	result := "success"
	details := map[string]any{"count": len(personas)}
	if err != nil {
		result = "failure"
		details["error"] = "internal_error"
	}
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action:       "import",
		Actor:        "cli",
		ResourceType: "persona",
		ResourceID:   personasCollection,
		Result:       result,
		Details:      details,
	})
	if err != nil {
		return fmt.Errorf("import personas: %w", err)
	}
	return nil
}

func fromSnapshot(doc *firestore.DocumentSnapshot) (*Persona, error) {
	var p Persona
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode persona %s: %w", doc.Ref.ID, err)
	}
	p.ID = doc.Ref.ID
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stored persona %s: %w", doc.Ref.ID, err)
	}
	return &p, nil
}
