//go:build integration

package firestore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-apns-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

func setupSuite(t *testing.T) (context.Context, *fs.FirestoreStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-invalid-tokens"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return ctx, fs.NewFirestoreStore(client, "")
}

func TestInvalidTokenStore_Integration(t *testing.T) {
	ctx, store := setupSuite(t)

	t.Run("Mark, Lookup, Clear lifecycle", func(t *testing.T) {
		token := "740f4707bebcf74f9b7c25d48e3358945f6aa01da5ddb387462c7eaf61bb78ad"
		since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		miss, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, miss)

		require.NoError(t, store.MarkInvalid(ctx, dispatch.InvalidToken{Token: token, Reason: "Unregistered", Since: since}))

		rec, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "Unregistered", rec.Reason)
		assert.True(t, since.Equal(rec.Since))

		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, store.Clear(ctx, token))
		gone, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, gone)

		// Clearing twice is fine.
		require.NoError(t, store.Clear(ctx, token))
	})

	t.Run("Expired records are ignored", func(t *testing.T) {
		token := "expired-token"
		require.NoError(t, store.MarkInvalid(ctx, dispatch.InvalidToken{
			Token:     token,
			Reason:    "BadDeviceToken",
			Since:     time.Now().Add(-2 * time.Hour),
			ExpiresAt: time.Now().Add(-time.Hour),
		}))

		rec, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}
