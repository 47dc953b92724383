package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClient carries change signals between service instances over pub/sub
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a client for addr. Connection errors surface on first use or Ping.
func NewRedisClient(addr, password string, db int) *RedisClient {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisClient{client: client}
}

// Ping checks that the server is reachable
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Publish sends an empty change signal on channel
func (r *RedisClient) Publish(ctx context.Context, channel string) error {
	return r.client.Publish(ctx, channel, "changed").Err()
}

// Subscribe delivers a signal for every message published on channel. Bursts coalesce
// into a single pending signal. The returned channel closes if the subscription drops.
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan struct{}, func(), error) {
	pubsub := r.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed before reporting success
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	signals := make(chan struct{}, 1)
	var once sync.Once
	release := func() {
		once.Do(func() { _ = pubsub.Close() })
	}

	go func() {
		defer close(signals)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				release()
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case signals <- struct{}{}:
				default:
				}
			}
		}
	}()

	return signals, release, nil
}
