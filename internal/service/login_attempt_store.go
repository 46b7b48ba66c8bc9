package service

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LoginAttemptStore keeps per-user failed login timestamps. Only failures are stored;
// a success resets the user's window.
type LoginAttemptStore interface {
	AddFailure(ctx context.Context, userID uint, at time.Time, window time.Duration) error
	// Failures returns failure timestamps strictly after since, oldest first.
	Failures(ctx context.Context, userID uint, since time.Time) ([]time.Time, error)
	Reset(ctx context.Context, userID uint) error
	// Prune drops failures at or before cutoff for all users and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

type InMemoryLoginAttemptStore struct {
	mu       sync.Mutex
	failures map[uint][]time.Time
}

func NewInMemoryLoginAttemptStore() *InMemoryLoginAttemptStore {
	return &InMemoryLoginAttemptStore{failures: make(map[uint][]time.Time)}
}

func (s *InMemoryLoginAttemptStore) AddFailure(_ context.Context, userID uint, at time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := pruneTimes(s.failures[userID], at.Add(-window))
	kept = append(kept, at)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
	s.failures[userID] = kept
	return nil
}

func (s *InMemoryLoginAttemptStore) Failures(_ context.Context, userID uint, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := pruneTimes(s.failures[userID], since)
	if len(kept) == 0 {
		delete(s.failures, userID)
		return nil, nil
	}
	s.failures[userID] = kept
	out := make([]time.Time, len(kept))
	copy(out, kept)
	return out, nil
}

func (s *InMemoryLoginAttemptStore) Reset(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, userID)
	return nil
}

func (s *InMemoryLoginAttemptStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, times := range s.failures {
		kept := pruneTimes(times, cutoff)
		removed += len(times) - len(kept)
		if len(kept) == 0 {
			delete(s.failures, userID)
			continue
		}
		s.failures[userID] = kept
	}
	return removed, nil
}

// pruneTimes keeps sorted timestamps strictly after cutoff.
func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	idx := sort.Search(len(times), func(i int) bool { return times[i].After(cutoff) })
	if idx == 0 {
		return times
	}
	kept := make([]time.Time, len(times)-idx)
	copy(kept, times[idx:])
	return kept
}
