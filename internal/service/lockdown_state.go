package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"

	"github.com/redis/go-redis/v9"
)

// LockdownStateStore holds the system-wide emergency lockdown flag. Activate and Deactivate
// report whether they changed the state so each transition is acted on once.
type LockdownStateStore interface {
	Load(ctx context.Context) (domain.LockdownState, error)
	Activate(ctx context.Context, reason, activatedBy string, at time.Time) (bool, error)
	Deactivate(ctx context.Context) (bool, error)
}

// InMemoryLockdownState is for single-instance deployments and tests.
type InMemoryLockdownState struct {
	state atomic.Pointer[domain.LockdownState]
}

func NewInMemoryLockdownState() *InMemoryLockdownState {
	s := &InMemoryLockdownState{}
	s.state.Store(&domain.LockdownState{})
	return s
}

func (s *InMemoryLockdownState) Load(context.Context) (domain.LockdownState, error) {
	return *s.state.Load(), nil
}

func (s *InMemoryLockdownState) Activate(_ context.Context, reason, activatedBy string, at time.Time) (bool, error) {
	for {
		cur := s.state.Load()
		if cur.Active {
			return false, nil
		}
		ts := at.UTC()
		next := &domain.LockdownState{Active: true, Reason: reason, ActivatedAt: &ts, ActivatedBy: activatedBy}
		if s.state.CompareAndSwap(cur, next) {
			return true, nil
		}
	}
}

func (s *InMemoryLockdownState) Deactivate(context.Context) (bool, error) {
	for {
		cur := s.state.Load()
		if !cur.Active {
			return false, nil
		}
		if s.state.CompareAndSwap(cur, &domain.LockdownState{}) {
			return true, nil
		}
	}
}

// activateLockdownScript claims the active field and writes the rest of the hash in one step.
var activateLockdownScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], "active", "1") == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "reason", ARGV[1], "activated_by", ARGV[2], "activated_at", ARGV[3])
return 1
`)

// RedisLockdownState shares the flag across instances in one hash. HSETNX on the active
// field decides which caller performs the transition.
type RedisLockdownState struct {
	client redis.UniversalClient
	key    string
}

func NewRedisLockdownState(client redis.UniversalClient, prefix string) *RedisLockdownState {
	if prefix == "" {
		prefix = "security"
	}
	return &RedisLockdownState{client: client, key: prefix + ":lockdown"}
}

func (s *RedisLockdownState) Load(ctx context.Context) (domain.LockdownState, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil && err != redis.Nil {
		return domain.LockdownState{}, err
	}
	if fields["active"] != "1" {
		return domain.LockdownState{}, nil
	}
	state := domain.LockdownState{Active: true, Reason: fields["reason"], ActivatedBy: fields["activated_by"]}
	if raw := fields["activated_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			state.ActivatedAt = &ts
		}
	}
	return state, nil
}

func (s *RedisLockdownState) Activate(ctx context.Context, reason, activatedBy string, at time.Time) (bool, error) {
	won, err := activateLockdownScript.Run(ctx, s.client, []string{s.key},
		reason, activatedBy, at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, err
	}
	return won == 1, nil
}

func (s *RedisLockdownState) Deactivate(ctx context.Context) (bool, error) {
	n, err := s.client.Del(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RepositoryLockdownState persists the flag in the lockdown_state row. Transitions are
// serialized within the process.
type RepositoryLockdownState struct {
	repo repository.LockdownRepository
	mu   sync.Mutex
}

func NewRepositoryLockdownState(repo repository.LockdownRepository) *RepositoryLockdownState {
	return &RepositoryLockdownState{repo: repo}
}

func (s *RepositoryLockdownState) Load(ctx context.Context) (domain.LockdownState, error) {
	return s.repo.Load(ctx)
}

func (s *RepositoryLockdownState) Activate(ctx context.Context, reason, activatedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	if cur.Active {
		return false, nil
	}
	ts := at.UTC()
	return true, s.repo.Save(ctx, domain.LockdownState{Active: true, Reason: reason, ActivatedAt: &ts, ActivatedBy: activatedBy})
}

func (s *RepositoryLockdownState) Deactivate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	if !cur.Active {
		return false, nil
	}
	return true, s.repo.Save(ctx, domain.LockdownState{})
}
