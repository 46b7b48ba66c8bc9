package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OperationCounter counts per-user operations in fixed windows. The window starts at the
// first increment and the count restarts once it has elapsed.
type OperationCounter interface {
	Increment(ctx context.Context, userID uint, window time.Duration) (int64, error)
	Count(ctx context.Context, userID uint) (int64, error)
}

type counterWindow struct {
	count     int64
	expiresAt time.Time
}

type InMemoryOperationCounter struct {
	mu      sync.Mutex
	windows map[uint]counterWindow
	now     func() time.Time
}

func NewInMemoryOperationCounter() *InMemoryOperationCounter {
	return &InMemoryOperationCounter{
		windows: make(map[uint]counterWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *InMemoryOperationCounter) Increment(_ context.Context, userID uint, window time.Duration) (int64, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[userID]
	if !ok || !now.Before(w.expiresAt) {
		w = counterWindow{expiresAt: now.Add(window)}
	}
	w.count++
	c.windows[userID] = w
	return w.count, nil
}

func (c *InMemoryOperationCounter) Count(_ context.Context, userID uint) (int64, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[userID]
	if !ok {
		return 0, nil
	}
	if !now.Before(w.expiresAt) {
		delete(c.windows, userID)
		return 0, nil
	}
	return w.count, nil
}

type RedisOperationCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisOperationCounter(client redis.UniversalClient, prefix string) *RedisOperationCounter {
	if prefix == "" {
		prefix = "op_count"
	}
	return &RedisOperationCounter{client: client, prefix: prefix}
}

// Increment bumps the count and starts the window TTL in one transaction. PEXPIRE NX
// leaves a running window untouched.
func (c *RedisOperationCounter) Increment(ctx context.Context, userID uint, window time.Duration) (int64, error) {
	key := c.key(userID)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Do(ctx, "PEXPIRE", key, window.Milliseconds(), "NX")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisOperationCounter) Count(ctx context.Context, userID uint) (int64, error) {
	n, err := c.client.Get(ctx, c.key(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisOperationCounter) key(userID uint) string {
	return fmt.Sprintf("%s:user:%s", c.prefix, userKey(userID))
}
