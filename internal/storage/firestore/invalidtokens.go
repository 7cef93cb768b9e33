package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

// DefaultCollection is the root collection invalid tokens are kept in.
const DefaultCollection = "apns-invalid-tokens"

// FirestoreStore implements dispatch.InvalidTokenStore using Google Cloud Firestore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection, now: time.Now}
}

func (s *FirestoreStore) MarkInvalid(ctx context.Context, rec dispatch.InvalidToken) error {
	if _, err := s.tokenRef(rec.Token).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to store invalid token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Lookup(ctx context.Context, token string) (*dispatch.InvalidToken, error) {
	snap, err := s.tokenRef(token).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read invalid token: %w", err)
	}

	var rec dispatch.InvalidToken
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("corrupt invalid token record %s: %w", snap.Ref.ID, err)
	}
	if rec.Expired(s.now()) {
		return nil, nil
	}
	return &rec, nil
}

// Clear deletes the record. Firestore deletes of missing documents succeed.
func (s *FirestoreStore) Clear(ctx context.Context, token string) error {
	if _, err := s.tokenRef(token).Delete(ctx); err != nil {
		return fmt.Errorf("failed to clear invalid token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]dispatch.InvalidToken, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	now := s.now()
	out := make([]dispatch.InvalidToken, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var rec dispatch.InvalidToken
		if err := doc.DataTo(&rec); err != nil {
			continue
		}
		if rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// tokenRef: {collection}/{tokenHash}
func (s *FirestoreStore) tokenRef(token string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(hashToken(token))
}

// hashToken keeps raw tokens out of document ids and spreads writes.
func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
