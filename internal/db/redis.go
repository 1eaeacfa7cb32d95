package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client together with the last observed
// connection state. The availability flag is written by the connection
// monitor and read on the hot path; a stale read only means one extra
// round trip against a dead server, which the client's own timeout bounds.
type RedisStore struct {
	Client *redis.Client

	available atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewRedisStore wraps an existing client. The store starts marked available;
// tests flip the flag directly via SetAvailable.
func NewRedisStore(client *redis.Client) *RedisStore {
	rs := &RedisStore{Client: client, stop: make(chan struct{})}
	rs.available.Store(true)
	return rs
}

// InitRedis connects to Redis and starts the availability monitor. An
// unreachable Redis is not fatal: every KV-dependent feature degrades, so
// the server starts anyway and the monitor flips the flag when the
// connection recovers.
func InitRedis(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		MaxRetries:      3,
		MaxRetryBackoff: 2 * time.Second,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	rs := NewRedisStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rs.available.Store(false)
		zap.L().Warn("Redis unreachable at startup, serving degraded", zap.String("addr", addr), zap.Error(err))
	} else {
		zap.L().Info("Connected to Redis", zap.String("addr", addr))
	}

	go rs.monitor(5 * time.Second)
	return rs, nil
}

// monitor pings the server on an interval and records the result.
func (r *RedisStore) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := r.Client.Ping(ctx).Err()
			cancel()
			up := err == nil
			if up != r.available.Swap(up) {
				if up {
					zap.L().Info("Redis connection restored")
				} else {
					zap.L().Warn("Redis connection lost", zap.Error(err))
				}
			}
		case <-r.stop:
			return
		}
	}
}

// IsAvailable reports the last observed connection state.
func (r *RedisStore) IsAvailable() bool {
	return r != nil && r.Client != nil && r.available.Load()
}

// SetAvailable overrides the availability flag. Intended for connection
// lifecycle events and tests.
func (r *RedisStore) SetAvailable(up bool) {
	r.available.Store(up)
}

// Close stops the monitor and shuts down the client.
func (r *RedisStore) Close() {
	if r == nil || r.Client == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	if err := r.Client.Close(); err != nil {
		zap.L().Error("redis close", zap.Error(err))
	}
}
