package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

const (
	DefaultMaxConcurrentSessions = 5
	DefaultSessionTTL            = 7 * 24 * time.Hour
)

type SessionView struct {
	TokenRef   string    `json:"token_ref"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"`
}

// SessionRegistry owns session lifecycle and the per-user concurrency cap.
type SessionRegistry struct {
	repo          repository.SessionRepository
	maxConcurrent int
	ttl           time.Duration
	locks         *keyedMutex
	logger        *slog.Logger
	now           func() time.Time
}

func NewSessionRegistry(repo repository.SessionRepository, maxConcurrent int, ttl time.Duration, logger *slog.Logger) *SessionRegistry {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		repo:          repo,
		maxConcurrent: maxConcurrent,
		ttl:           ttl,
		locks:         newKeyedMutex(),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession evicts the least recently used live session when the user is at capacity,
// then inserts the new one. Concurrent calls for one user are serialized in-process and
// the repository locks the user's live rows inside its transaction.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID uint, tokenRef, ip, userAgent string) (*domain.Session, error) {
	tokenRef = strings.TrimSpace(tokenRef)
	if tokenRef == "" {
		return nil, &ValidationError{Errors: []string{"token reference is required"}}
	}
	unlock := r.locks.Lock(userKey(userID))
	defer unlock()

	now := r.now()
	s := &domain.Session{
		UserID:     userID,
		TokenRef:   tokenRef,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}
	evicted, err := r.repo.CreateWithinLimit(ctx, s, r.maxConcurrent)
	if err != nil {
		return nil, storageErr("session.create", err)
	}
	observability.RecordSessionOperation(ctx, "create", 1)
	if len(evicted) > 0 {
		observability.RecordSessionOperation(ctx, "evict", int64(len(evicted)))
		r.logger.InfoContext(ctx, "evicted least recently used sessions",
			"module", "session_registry",
			"operation", "create_session",
			"user_id", userID,
			"evicted", len(evicted),
		)
	}
	return s, nil
}

// Validate reports whether tokenRef names a live session and bumps its lastUsedAt.
// A failed bump is logged and does not invalidate the session.
func (r *SessionRegistry) Validate(ctx context.Context, tokenRef string) (bool, error) {
	s, err := r.Lookup(ctx, tokenRef)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// Lookup returns the live session for tokenRef, or nil when absent or expired.
func (r *SessionRegistry) Lookup(ctx context.Context, tokenRef string) (*domain.Session, error) {
	s, err := r.repo.FindByTokenRef(ctx, tokenRef)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, storageErr("session.find", err)
	}
	now := r.now()
	if !s.Live(now) {
		return nil, nil
	}
	if err := r.repo.TouchLastUsed(ctx, tokenRef, now); err != nil {
		r.logger.WarnContext(ctx, "session activity update failed",
			"module", "session_registry",
			"operation", "validate",
			"user_id", s.UserID,
			"error", err,
		)
	} else {
		s.LastUsedAt = now
	}
	return s, nil
}

func (r *SessionRegistry) Revoke(ctx context.Context, tokenRef string) (int64, error) {
	n, err := r.repo.DeleteByTokenRef(ctx, tokenRef)
	if err != nil {
		return 0, storageErr("session.revoke", err)
	}
	observability.RecordSessionOperation(ctx, "revoke", n)
	return n, nil
}

// RevokeForUser only deletes tokenRef when it belongs to userID.
func (r *SessionRegistry) RevokeForUser(ctx context.Context, userID uint, tokenRef string) (int64, error) {
	n, err := r.repo.DeleteByTokenRefForUser(ctx, userID, tokenRef)
	if err != nil {
		return 0, storageErr("session.revoke_for_user", err)
	}
	observability.RecordSessionOperation(ctx, "revoke", n)
	return n, nil
}

func (r *SessionRegistry) RevokeAllExcept(ctx context.Context, userID uint, keepTokenRef string) (int64, error) {
	unlock := r.locks.Lock(userKey(userID))
	defer unlock()
	n, err := r.repo.DeleteOthersByUser(ctx, userID, keepTokenRef)
	if err != nil {
		return 0, storageErr("session.revoke_all_except", err)
	}
	observability.RecordSessionOperation(ctx, "revoke", n)
	return n, nil
}

func (r *SessionRegistry) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	unlock := r.locks.Lock(userKey(userID))
	defer unlock()
	n, err := r.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, storageErr("session.revoke_all", err)
	}
	observability.RecordSessionOperation(ctx, "revoke", n)
	return n, nil
}

func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, storageErr("session.sweep_expired", err)
	}
	observability.RecordSessionOperation(ctx, "sweep", n)
	return n, nil
}

// ListSessions returns live sessions, most recently used first.
func (r *SessionRegistry) ListSessions(ctx context.Context, userID uint, currentTokenRef string) ([]SessionView, error) {
	sessions, err := r.repo.ListActiveByUserID(ctx, userID, r.now())
	if err != nil {
		return nil, storageErr("session.list", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{
			TokenRef:   s.TokenRef,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
			IsCurrent:  currentTokenRef != "" && s.TokenRef == currentTokenRef,
		})
	}
	return views, nil
}
