package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIPBlockStore keeps one TTL key per blocked IP plus an index set used for listing.
type RedisIPBlockStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIPBlockStore(client redis.UniversalClient, prefix string) *RedisIPBlockStore {
	if prefix == "" {
		prefix = "ip_blocks"
	}
	return &RedisIPBlockStore{client: client, prefix: prefix}
}

func (s *RedisIPBlockStore) Block(ctx context.Context, ip, reason string, ttl time.Duration) error {
	ip = strings.TrimSpace(ip)
	if s.client == nil || ip == "" || ttl <= 0 {
		return nil
	}
	dataKey := s.dataKey(ip)
	remaining, err := s.client.PTTL(ctx, dataKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if remaining > ttl {
		ttl = remaining
	}
	payload, err := json.Marshal(IPBlock{IP: ip, Reason: reason, ExpiresAt: time.Now().UTC().Add(ttl)})
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, payload, ttl)
	pipe.SAdd(ctx, s.indexKey(), dataKey)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisIPBlockStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.dataKey(strings.TrimSpace(ip))).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisIPBlockStore) Unblock(ctx context.Context, ip string) error {
	if s.client == nil {
		return nil
	}
	dataKey := s.dataKey(strings.TrimSpace(ip))
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, dataKey)
	pipe.SRem(ctx, s.indexKey(), dataKey)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live blocks and drops index members whose key has expired.
func (s *RedisIPBlockStore) List(ctx context.Context) ([]IPBlock, error) {
	if s.client == nil {
		return nil, nil
	}
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]IPBlock, 0, len(keys))
	stale := make([]any, 0)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var block IPBlock
		if err := json.Unmarshal([]byte(raw), &block); err != nil {
			stale = append(stale, keys[i])
			continue
		}
		out = append(out, block)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

func (s *RedisIPBlockStore) dataKey(ip string) string {
	return fmt.Sprintf("%s:data:%s", s.prefix, hashToken(ip))
}

func (s *RedisIPBlockStore) indexKey() string {
	return s.prefix + ":index"
}
