package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLoginAttemptStore keeps one sorted set per user scored by failure time in milliseconds.
type RedisLoginAttemptStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLoginAttemptStore(client redis.UniversalClient, prefix string) *RedisLoginAttemptStore {
	if prefix == "" {
		prefix = "login_attempts"
	}
	return &RedisLoginAttemptStore{client: client, prefix: prefix}
}

func (s *RedisLoginAttemptStore) AddFailure(ctx context.Context, userID uint, at time.Time, window time.Duration) error {
	key := s.key(userID)
	ms := at.UnixMilli()
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(at.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ms), Member: fmt.Sprintf("%d:%s", ms, uuid.NewString())})
	pipe.PExpire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisLoginAttemptStore) Failures(ctx context.Context, userID uint, since time.Time) ([]time.Time, error) {
	entries, err := s.client.ZRangeByScoreWithScores(ctx, s.key(userID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, time.UnixMilli(int64(e.Score)).UTC())
	}
	return out, nil
}

func (s *RedisLoginAttemptStore) Reset(ctx context.Context, userID uint) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

func (s *RedisLoginAttemptStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	upper := strconv.FormatInt(cutoff.UnixMilli(), 10)
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+":user:*", 200).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", upper).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, iter.Err()
}

func (s *RedisLoginAttemptStore) key(userID uint) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userKey(userID))
}
