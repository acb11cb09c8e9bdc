package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoRedis mirrors the example pack's convention of exercising
// Redis-backed code against a live instance when one is reachable and
// skipping otherwise, rather than mocking the client.
func skipIfNoRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping persistence test: redis unavailable: %v", err)
		return nil
	}
	return client
}

func setupStore(t *testing.T) (*Store, string, func()) {
	client := skipIfNoRedis(t)
	if client == nil {
		return nil, "", func() {}
	}
	store, err := New(client, Options{KeyPrefix: "crdtengine-test"}, nil)
	require.NoError(t, err)

	docID := uuid.NewString()
	cleanup := func() {
		_ = store.Delete(context.Background(), docID)
		_ = client.Close()
	}
	return store, docID, cleanup
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	assert.Error(t, err)
}

func TestNewFillsDefaultOptions(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store, err := New(client, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().KeyPrefix, store.opts.KeyPrefix)
}

func TestUpdatesReturnsErrNotFoundWhenEmpty(t *testing.T) {
	store, docID, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.Updates(context.Background(), docID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAndUpdatesPreservesOrder(t *testing.T) {
	store, docID, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	assert.NoError(t, store.Append(ctx, docID, []byte("first")))
	assert.NoError(t, store.Append(ctx, docID, []byte("second")))

	got, err := store.Updates(ctx, docID)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, got)
}

func TestSaveAndLoadStateVector(t *testing.T) {
	store, docID, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.LoadStateVector(ctx, docID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.SaveStateVector(ctx, docID, []byte{1, 2, 3}))
	sv, err := store.LoadStateVector(ctx, docID)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, sv)
}

func TestCompactReplacesHistoryWithSnapshot(t *testing.T) {
	store, docID, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	assert.NoError(t, store.Append(ctx, docID, []byte("a")))
	assert.NoError(t, store.Append(ctx, docID, []byte("b")))
	assert.NoError(t, store.Append(ctx, docID, []byte("c")))

	assert.NoError(t, store.Compact(ctx, docID, []byte("merged")))

	got, err := store.Updates(ctx, docID)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("merged")}, got)
}

func TestDeleteRemovesUpdatesAndStateVector(t *testing.T) {
	store, docID, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	assert.NoError(t, store.Append(ctx, docID, []byte("a")))
	assert.NoError(t, store.SaveStateVector(ctx, docID, []byte{9}))

	assert.NoError(t, store.Delete(ctx, docID))

	_, err := store.Updates(ctx, docID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadStateVector(ctx, docID)
	assert.ErrorIs(t, err, ErrNotFound)
}
