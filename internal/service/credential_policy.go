package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash, password string) (bool, error)
}

type CredentialPolicy struct {
	MinLength    int
	MaxFailures  int
	Window       time.Duration
	HistoryDepth int
}

func DefaultCredentialPolicy() CredentialPolicy {
	return CredentialPolicy{
		MinLength:    8,
		MaxFailures:  5,
		Window:       15 * time.Minute,
		HistoryDepth: 3,
	}
}

type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type LockStatus struct {
	Locked   bool       `json:"locked"`
	UnlockAt *time.Time `json:"unlock_at,omitempty"`
}

// CredentialPolicyGuard enforces password strength, reuse and login lockout rules.
type CredentialPolicyGuard struct {
	policy   CredentialPolicy
	attempts LoginAttemptStore
	history  repository.PasswordHistoryRepository
	hasher   PasswordHasher
	locks    *keyedMutex
	logger   *slog.Logger
	now      func() time.Time
}

func NewCredentialPolicyGuard(policy CredentialPolicy, attempts LoginAttemptStore, history repository.PasswordHistoryRepository, hasher PasswordHasher, logger *slog.Logger) *CredentialPolicyGuard {
	defaults := DefaultCredentialPolicy()
	if policy.MinLength <= 0 {
		policy.MinLength = defaults.MinLength
	}
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = defaults.MaxFailures
	}
	if policy.Window <= 0 {
		policy.Window = defaults.Window
	}
	if policy.HistoryDepth <= 0 {
		policy.HistoryDepth = defaults.HistoryDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialPolicyGuard{
		policy:   policy,
		attempts: attempts,
		history:  history,
		hasher:   hasher,
		locks:    newKeyedMutex(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ValidateStrength reports every violated rule, not only the first.
func (g *CredentialPolicyGuard) ValidateStrength(password string) StrengthResult {
	errs := make([]string, 0, 4)
	if len([]rune(password)) < g.policy.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", g.policy.MinLength))
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "password must contain at least one digit")
	}
	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

// CheckReuse reports whether candidate matches one of the most recent history entries.
func (g *CredentialPolicyGuard) CheckReuse(ctx context.Context, userID uint, candidate string) (bool, error) {
	entries, err := g.history.LastN(ctx, userID, g.policy.HistoryDepth)
	if err != nil {
		return false, storageErr("password_history.last_n", err)
	}
	for _, entry := range entries {
		ok, err := g.hasher.Matches(entry.PasswordHash, candidate)
		if err != nil {
			g.logger.WarnContext(ctx, "password history entry unreadable",
				"module", "credential_policy",
				"operation", "check_reuse",
				"user_id", userID,
				"error", err,
			)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// SavePasswordHistory appends an already hashed password to the user's history.
func (g *CredentialPolicyGuard) SavePasswordHistory(ctx context.Context, userID uint, passwordHash string) error {
	entry := &domain.PasswordHistory{UserID: userID, PasswordHash: passwordHash, CreatedAt: g.now()}
	if err := g.history.Append(ctx, entry); err != nil {
		return storageErr("password_history.append", err)
	}
	return nil
}

// RecordAttempt appends a failure to the user's window, or clears the window on success.
func (g *CredentialPolicyGuard) RecordAttempt(ctx context.Context, userID uint, success bool) error {
	unlock := g.locks.Lock(userKey(userID))
	defer unlock()
	if success {
		if err := g.attempts.Reset(ctx, userID); err != nil {
			return storageErr("login_attempts.reset", err)
		}
		return nil
	}
	if err := g.attempts.AddFailure(ctx, userID, g.now(), g.policy.Window); err != nil {
		return storageErr("login_attempts.add_failure", err)
	}
	return nil
}

// IsLocked is recomputed from the window on every call. The account unlocks once the
// failure that completed the threshold count ages out of the window.
func (g *CredentialPolicyGuard) IsLocked(ctx context.Context, userID uint) (LockStatus, error) {
	now := g.now()
	failures, err := g.attempts.Failures(ctx, userID, now.Add(-g.policy.Window))
	if err != nil {
		return LockStatus{}, storageErr("login_attempts.failures", err)
	}
	if len(failures) < g.policy.MaxFailures {
		return LockStatus{}, nil
	}
	nth := failures[len(failures)-g.policy.MaxFailures]
	unlockAt := nth.Add(g.policy.Window)
	return LockStatus{Locked: true, UnlockAt: &unlockAt}, nil
}

func (g *CredentialPolicyGuard) ResetAttempts(ctx context.Context, userID uint) error {
	unlock := g.locks.Lock(userKey(userID))
	defer unlock()
	if err := g.attempts.Reset(ctx, userID); err != nil {
		return storageErr("login_attempts.reset", err)
	}
	return nil
}

func (g *CredentialPolicyGuard) GetFailedLoginCount(ctx context.Context, userID uint) (int, error) {
	failures, err := g.attempts.Failures(ctx, userID, g.now().Add(-g.policy.Window))
	if err != nil {
		return 0, storageErr("login_attempts.failures", err)
	}
	return len(failures), nil
}

// CleanupExpiredAttempts drops failures that have left the window for every user.
func (g *CredentialPolicyGuard) CleanupExpiredAttempts(ctx context.Context) (int, error) {
	n, err := g.attempts.Prune(ctx, g.now().Add(-g.policy.Window))
	if err != nil {
		return n, storageErr("login_attempts.prune", err)
	}
	return n, nil
}
