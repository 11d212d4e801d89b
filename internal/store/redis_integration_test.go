//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortqr/internal/shortener"
	"github.com/serroba/shortqr/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: getRedisAddr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

func TestRedisStoreIntegration(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	s := store.NewRedisStore(client)

	t.Run("put and get link", func(t *testing.T) {
		link := &shortener.ShortLink{
			Code:      "rdTest01",
			LongURL:   "https://example.com",
			URLHash:   shortener.HashURL("https://example.com"),
			CreatedAt: time.Now().UTC(),
		}
		defer client.Del(ctx, "link:rdTest01")
		defer client.HDel(ctx, "link_hashes", string(link.URLHash))

		ok, err := s.PutIfAbsent(ctx, link)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.GetByCode(ctx, link.Code)
		require.NoError(t, err)
		assert.Equal(t, link.LongURL, got.LongURL)
		assert.True(t, link.CreatedAt.Equal(got.CreatedAt))

		byHash, err := s.GetByHash(ctx, link.URLHash)
		require.NoError(t, err)
		assert.Equal(t, link.Code, byHash.Code)
	})

	t.Run("taken code is not overwritten", func(t *testing.T) {
		defer client.Del(ctx, "link:rdTaken1")

		ok, err := s.PutIfAbsent(ctx, &shortener.ShortLink{Code: "rdTaken1", LongURL: "https://old.com"})
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.PutIfAbsent(ctx, &shortener.ShortLink{Code: "rdTaken1", LongURL: "https://new.com"})
		require.NoError(t, err)
		assert.False(t, ok)

		got, _ := s.GetByCode(ctx, "rdTaken1")
		assert.Equal(t, "https://old.com", got.LongURL)
	})

	t.Run("increment hits", func(t *testing.T) {
		defer client.Del(ctx, "link:rdHits01")

		_, err := s.PutIfAbsent(ctx, &shortener.ShortLink{Code: "rdHits01", LongURL: "https://example.com"})
		require.NoError(t, err)

		require.NoError(t, s.IncrementHits(ctx, "rdHits01", 2))
		require.NoError(t, s.IncrementHits(ctx, "rdHits01", 3))

		got, _ := s.GetByCode(ctx, "rdHits01")
		assert.Equal(t, int64(5), got.HitCount)
		assert.ErrorIs(t, s.IncrementHits(ctx, "rdMissing", 1), shortener.ErrNotFound)
	})

	t.Run("get non-existent returns ErrNotFound", func(t *testing.T) {
		got, err := s.GetByCode(ctx, "rdMissing")

		assert.Nil(t, got)
		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})
}

func TestRedisCacheRepositoryIntegration(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	backing := store.NewMemoryStore()
	s := store.NewRedisCacheRepository(backing, client, time.Minute)

	link := &shortener.ShortLink{
		Code:      "rdCache1",
		LongURL:   "https://example.com/cached",
		URLHash:   shortener.HashURL("https://example.com/cached"),
		CreatedAt: time.Now().UTC(),
	}
	defer client.Del(ctx, "cache:link:rdCache1")
	defer client.HDel(ctx, "cache:link_hashes", string(link.URLHash))

	ok, err := s.PutIfAbsent(ctx, link)
	require.NoError(t, err)
	require.True(t, ok)

	cached, err := client.HGet(ctx, "cache:link:rdCache1", "long_url").Result()
	require.NoError(t, err)
	assert.Equal(t, link.LongURL, cached)

	got, err := s.GetByHash(ctx, link.URLHash)
	require.NoError(t, err)
	assert.Equal(t, link.Code, got.Code)

	_, err = s.GetByCode(ctx, "rdMissing")
	assert.ErrorIs(t, err, shortener.ErrNotFound)
}
