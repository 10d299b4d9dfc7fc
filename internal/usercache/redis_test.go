package usercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"storyline/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, s
}

func TestNewRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache("://nope", time.Minute)
	require.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))
	u := domain.User{SpaceID: "AAA", ID: "123", DisplayName: "Ada", AvatarURL: "https://example.com/a.png"}
	require.NoError(t, cache.Set(ctx, u))

	got, err := cache.Get(ctx, "AAA", "123")
	require.NoError(t, err)
	require.Equal(t, u, got)

	_, err = cache.Get(ctx, "BBB", "123")
	require.True(t, errors.Is(err, ErrMiss))
}

func TestEntriesExpire(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.User{SpaceID: "AAA", ID: "1", DisplayName: "One"}))
	s.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "AAA", "1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestDeleteSpace(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.User{SpaceID: "AAA", ID: "1", DisplayName: "One"}))
	require.NoError(t, cache.Set(ctx, domain.User{SpaceID: "AAA", ID: "2", DisplayName: "Two"}))
	require.NoError(t, cache.Set(ctx, domain.User{SpaceID: "BBB", ID: "1", DisplayName: "Other"}))

	require.NoError(t, cache.DeleteSpace(ctx, "AAA"))
	require.False(t, s.Exists("user:AAA:1"))
	require.False(t, s.Exists("user:AAA:2"))
	require.True(t, s.Exists("user:BBB:1"))

	require.NoError(t, cache.Delete(ctx, "BBB", "1"))
	_, err := cache.Get(ctx, "BBB", "1")
	require.ErrorIs(t, err, ErrMiss)
}
