package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_PerClientBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "other clients keep their own budget")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "bucket refills over time")
}

func TestLocalLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, 1)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "10.0.0.1")
	require.Len(t, l.clients, 1)

	now = now.Add(defaultClientTTL + defaultCleanupInterval)
	_, _ = l.Allow(context.Background(), "10.0.0.2")
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "10.0.0.2")
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := newMiniredisClient(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, 3)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	key := "taskboard:ratelimit:10.0.0.1:" + "1767225600"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Second, mr.TTL(key))

	now = now.Add(time.Second)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	_, client := newMiniredisClient(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a := NewRedisLimiter(client, 2)
	a.now = clock
	b := NewRedisLimiter(client, 2)
	b.now = clock
	ctx := context.Background()

	ok, _ := a.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = b.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = a.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, client := newMiniredisClient(t)
	mr.Close()

	_, err := NewRedisLimiter(client, 1).Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}
