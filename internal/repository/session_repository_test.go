package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
)

func newSession(userID uint, ref string, created, lastUsed time.Time) *domain.Session {
	return &domain.Session{
		UserID:     userID,
		TokenRef:   ref,
		IPAddress:  "10.0.0.1",
		UserAgent:  "test",
		CreatedAt:  created,
		LastUsedAt: lastUsed,
		ExpiresAt:  created.Add(7 * 24 * time.Hour),
	}
}

func TestSessionRepositoryCreateWithinLimitEvictsLeastRecentlyUsed(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s := newSession(1, fmt.Sprintf("ref-%d", i), base.Add(time.Duration(i)*time.Minute), base.Add(time.Duration(i)*time.Minute))
		if _, err := repo.CreateWithinLimit(ctx, s, 3); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if err := repo.TouchLastUsed(ctx, "ref-0", base.Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	evicted, err := repo.CreateWithinLimit(ctx, newSession(1, "ref-3", base.Add(2*time.Hour), base.Add(2*time.Hour)), 3)
	if err != nil {
		t.Fatalf("create over limit: %v", err)
	}
	if len(evicted) != 1 || evicted[0].TokenRef != "ref-1" {
		t.Fatalf("expected ref-1 evicted, got %+v", evicted)
	}
	if _, err := repo.FindByTokenRef(ctx, "ref-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected evicted session gone, got %v", err)
	}
	count, err := repo.CountActiveByUserID(ctx, 1, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 live sessions, got %d", count)
	}
}

func TestSessionRepositoryEvictionTieBreaksOnCreatedAt(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	same := base.Add(time.Hour)

	if _, err := repo.CreateWithinLimit(ctx, newSession(1, "newer", base.Add(time.Minute), same), 2); err != nil {
		t.Fatalf("create newer: %v", err)
	}
	if _, err := repo.CreateWithinLimit(ctx, newSession(1, "older", base, same), 2); err != nil {
		t.Fatalf("create older: %v", err)
	}
	evicted, err := repo.CreateWithinLimit(ctx, newSession(1, "third", base.Add(2*time.Hour), base.Add(2*time.Hour)), 2)
	if err != nil {
		t.Fatalf("create third: %v", err)
	}
	if len(evicted) != 1 || evicted[0].TokenRef != "older" {
		t.Fatalf("expected oldest created session evicted, got %+v", evicted)
	}
}

func TestSessionRepositoryExpiredSessionsDoNotCountTowardLimit(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	expired := newSession(1, "expired", now.Add(-8*24*time.Hour), now.Add(-8*24*time.Hour))
	if _, err := repo.CreateWithinLimit(ctx, expired, 1); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	evicted, err := repo.CreateWithinLimit(ctx, newSession(1, "live", now, now), 1)
	if err != nil {
		t.Fatalf("create live: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("expected no eviction, got %+v", evicted)
	}
}

func TestSessionRepositoryListActiveByUserID(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	sessions := []*domain.Session{
		newSession(1, "a", now.Add(-time.Hour), now.Add(-time.Hour)),
		newSession(1, "b", now.Add(-2*time.Hour), now.Add(-time.Minute)),
		newSession(1, "old", now.Add(-10*24*time.Hour), now.Add(-10*24*time.Hour)),
		newSession(2, "other", now.Add(-time.Hour), now.Add(-time.Hour)),
	}
	for _, s := range sessions {
		if _, err := repo.CreateWithinLimit(ctx, s, 0); err != nil {
			t.Fatalf("create %s: %v", s.TokenRef, err)
		}
	}

	got, err := repo.ListActiveByUserID(ctx, 1, now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(got))
	}
	if got[0].TokenRef != "b" || got[1].TokenRef != "a" {
		t.Fatalf("expected most recently used first, got %s,%s", got[0].TokenRef, got[1].TokenRef)
	}
}

func TestSessionRepositoryDeletesAreIdempotent(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	for _, ref := range []string{"s1", "s2", "s3"} {
		if _, err := repo.CreateWithinLimit(ctx, newSession(1, ref, now, now), 0); err != nil {
			t.Fatalf("create %s: %v", ref, err)
		}
	}
	if _, err := repo.CreateWithinLimit(ctx, newSession(2, "u2", now, now), 0); err != nil {
		t.Fatalf("create u2: %v", err)
	}

	n, err := repo.DeleteByTokenRef(ctx, "s1")
	if err != nil || n != 1 {
		t.Fatalf("first delete: n=%d err=%v", n, err)
	}
	n, err = repo.DeleteByTokenRef(ctx, "s1")
	if err != nil || n != 0 {
		t.Fatalf("second delete: n=%d err=%v", n, err)
	}
	n, err = repo.DeleteByTokenRefForUser(ctx, 2, "s2")
	if err != nil || n != 0 {
		t.Fatalf("cross-user delete must not match: n=%d err=%v", n, err)
	}
	n, err = repo.DeleteOthersByUser(ctx, 1, "s3")
	if err != nil || n != 1 {
		t.Fatalf("delete others: n=%d err=%v", n, err)
	}
	if _, err := repo.FindByTokenRef(ctx, "s3"); err != nil {
		t.Fatalf("kept session missing: %v", err)
	}
	n, err = repo.DeleteByUserID(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("delete by user: n=%d err=%v", n, err)
	}
	if _, err := repo.FindByTokenRef(ctx, "u2"); err != nil {
		t.Fatalf("other user session must remain: %v", err)
	}
}

func TestSessionRepositoryDeleteExpired(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	if _, err := repo.CreateWithinLimit(ctx, newSession(1, "expired", now.Add(-8*24*time.Hour), now.Add(-8*24*time.Hour)), 0); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := repo.CreateWithinLimit(ctx, newSession(1, "live", now, now), 0); err != nil {
		t.Fatalf("create live: %v", err)
	}
	n, err := repo.DeleteExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("delete expired: n=%d err=%v", n, err)
	}
	n, err = repo.DeleteExpired(ctx, now)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}
