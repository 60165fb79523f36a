package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func setupTestRedis(t *testing.T) (*KVStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewKVStore(client, ""), mr
}

func TestKVStore_SetGetDelete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "user_token")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "user_token", []byte("token-1"), 0))
	assert.True(t, mr.Exists("storefront:user_token"))

	got, err := store.Get(ctx, "user_token")
	require.NoError(t, err)
	assert.Equal(t, "token-1", string(got))

	require.NoError(t, store.Delete(ctx, "user_token"))
	require.NoError(t, store.Delete(ctx, "user_token"))
	_, err = store.Get(ctx, "user_token")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestKVStore_TTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "transactionHistory:user-1", []byte(`[]`), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("storefront:transactionHistory:user-1"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "transactionHistory:user-1")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestKVStore_ServerError(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.SetError("READONLY")
	_, err := store.Get(ctx, "user")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrKeyNotFound)
	require.Error(t, store.Ping(ctx))
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := Open(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(context.Background()))
}
