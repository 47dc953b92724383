package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live server and are skipped unless REDIS_TEST_ADDR is set
func testClient(t *testing.T) *RedisClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c
}

func TestPublishSubscribe(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals, release, err := c.Subscribe(ctx, "cio-chat-test:messages")
	require.NoError(t, err)
	defer release()

	require.NoError(t, c.Publish(ctx, "cio-chat-test:messages"))

	select {
	case _, ok := <-signals:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	signals, _, err := c.Subscribe(ctx, "cio-chat-test:cancel")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-signals:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
