package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type IPBlock struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IPBlockStore holds temporary IP blocks. Entries expire on their own after the block duration.
type IPBlockStore interface {
	Block(ctx context.Context, ip, reason string, ttl time.Duration) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Unblock(ctx context.Context, ip string) error
	List(ctx context.Context) ([]IPBlock, error)
}

type NoopIPBlockStore struct{}

func NewNoopIPBlockStore() *NoopIPBlockStore { return &NoopIPBlockStore{} }

func (s *NoopIPBlockStore) Block(context.Context, string, string, time.Duration) error { return nil }

func (s *NoopIPBlockStore) IsBlocked(context.Context, string) (bool, error) { return false, nil }

func (s *NoopIPBlockStore) Unblock(context.Context, string) error { return nil }

func (s *NoopIPBlockStore) List(context.Context) ([]IPBlock, error) { return nil, nil }

type InMemoryIPBlockStore struct {
	mu     sync.RWMutex
	blocks map[string]IPBlock
	now    func() time.Time
}

func NewInMemoryIPBlockStore() *InMemoryIPBlockStore {
	return &InMemoryIPBlockStore{
		blocks: make(map[string]IPBlock),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryIPBlockStore) Block(_ context.Context, ip, reason string, ttl time.Duration) error {
	ip = strings.TrimSpace(ip)
	if ip == "" || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt := s.now().Add(ttl)
	// A repeated block never shortens an existing one.
	if cur, ok := s.blocks[ip]; ok && cur.ExpiresAt.After(expiresAt) {
		expiresAt = cur.ExpiresAt
	}
	s.blocks[ip] = IPBlock{IP: ip, Reason: reason, ExpiresAt: expiresAt}
	return nil
}

func (s *InMemoryIPBlockStore) IsBlocked(_ context.Context, ip string) (bool, error) {
	ip = strings.TrimSpace(ip)
	now := s.now()
	s.mu.RLock()
	block, ok := s.blocks[ip]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !now.Before(block.ExpiresAt) {
		s.mu.Lock()
		if cur, ok2 := s.blocks[ip]; ok2 && !now.Before(cur.ExpiresAt) {
			delete(s.blocks, ip)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *InMemoryIPBlockStore) Unblock(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, strings.TrimSpace(ip))
	return nil
}

func (s *InMemoryIPBlockStore) List(_ context.Context) ([]IPBlock, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IPBlock, 0, len(s.blocks))
	for _, b := range s.blocks {
		if now.Before(b.ExpiresAt) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}
