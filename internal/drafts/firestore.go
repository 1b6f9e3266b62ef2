package drafts

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps drafts as documents in one collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore connects to projectID. An empty credentialsFile uses
// application default credentials.
func NewFirestoreStore(ctx context.Context, projectID, collection, credentialsFile string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("drafts: firestore project id must be provided")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("drafts: create firestore client: %w", err)
	}
	return NewFirestoreStoreWithClient(client, collection), nil
}

// NewFirestoreStoreWithClient wraps an existing client, e.g. one pointed at
// the emulator.
func NewFirestoreStoreWithClient(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "drafts"
	}
	return &FirestoreStore{client: client, collection: collection}
}

// Get reads a draft document.
func (s *FirestoreStore) Get(ctx context.Context, id string) (Draft, error) {
	if err := checkID(id); err != nil {
		return Draft{}, err
	}
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return Draft{}, getError(id, err)
	}
	var d Draft
	if err := snap.DataTo(&d); err != nil {
		return Draft{}, fmt.Errorf("drafts: decode %s: %w", id, err)
	}
	if d.ID == "" {
		d.ID = snap.Ref.ID
	}
	return d, nil
}

// Save overwrites the draft document.
func (s *FirestoreStore) Save(ctx context.Context, d Draft) error {
	if err := checkID(d.ID); err != nil {
		return err
	}
	if _, err := s.client.Collection(s.collection).Doc(d.ID).Set(ctx, d); err != nil {
		return fmt.Errorf("drafts: save %s: %w", d.ID, err)
	}
	return nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// getError maps a missing document to ErrDraftNotFound.
func getError(id string, err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrDraftNotFound
	}
	return fmt.Errorf("drafts: get %s: %w", id, err)
}
