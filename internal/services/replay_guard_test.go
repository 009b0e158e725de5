package services

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestReplayGuardConsumesOnce(t *testing.T) {
	mr, client := newTestRedis(t)
	guard := NewReplayGuard(client, 10*time.Minute)
	ctx := context.Background()

	fresh, err := guard.Consume(ctx, "0xABC", "Login\n\nTimestamp: 1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.Consume(ctx, "0xabc", "Login\n\nTimestamp: 1")
	require.NoError(t, err)
	assert.False(t, fresh, "address case must not bypass the guard")

	fresh, err = guard.Consume(ctx, "0xabc", "Login\n\nTimestamp: 2")
	require.NoError(t, err)
	assert.True(t, fresh)

	mr.FastForward(11 * time.Minute)
	fresh, err = guard.Consume(ctx, "0xabc", "Login\n\nTimestamp: 1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReplayGuardNilAcceptsEverything(t *testing.T) {
	var guard *ReplayGuard
	fresh, err := guard.Consume(context.Background(), "0xabc", "m")
	assert.NoError(t, err)
	assert.True(t, fresh)
}

func TestReplayGuardRelease(t *testing.T) {
	_, client := newTestRedis(t)
	guard := NewReplayGuard(client, 10*time.Minute)
	ctx := context.Background()

	fresh, err := guard.Consume(ctx, "0xabc", "m")
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, guard.Release(ctx, "0xABC", "m"))

	fresh, err = guard.Consume(ctx, "0xabc", "m")
	require.NoError(t, err)
	assert.True(t, fresh)

	var nilGuard *ReplayGuard
	assert.NoError(t, nilGuard.Release(ctx, "0xabc", "m"))
}
