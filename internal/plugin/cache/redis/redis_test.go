package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/consulta/advisor-service/internal/model"
	"github.com/consulta/advisor-service/internal/plugin/cache/redis"
	"github.com/consulta/advisor-service/internal/testutil/testredis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionCache(t *testing.T) {
	ctx := context.Background()
	redisURL := testredis.StartRedis(t)

	c, err := redis.LoadFromURL(ctx, redisURL)
	require.NoError(t, err)
	require.True(t, c.Available())

	session := model.Session{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, "digest-1", session, 0))

	got, err := c.Get(ctx, "digest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.AccountID, got.AccountID)

	require.NoError(t, c.Remove(ctx, "digest-1"))
	got, err = c.Get(ctx, "digest-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	missing, err := c.Get(ctx, "never-set")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisSessionCacheTTL(t *testing.T) {
	ctx := context.Background()
	redisURL := testredis.StartRedis(t)

	c, err := redis.LoadFromURL(ctx, redisURL)
	require.NoError(t, err)

	session := model.Session{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, "short-lived", session, time.Second))

	got, err := c.Get(ctx, "short-lived")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Eventually(t, func() bool {
		got, err := c.Get(ctx, "short-lived")
		return err == nil && got == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisSessionCacheBadURL(t *testing.T) {
	_, err := redis.LoadFromURL(context.Background(), "not-a-redis-url")
	require.Error(t, err)
}
