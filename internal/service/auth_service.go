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

type LoginRequest struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	User     *domain.User         `json:"user,omitempty"`
	Tokens   *TokenPair           `json:"tokens,omitempty"`
	Session  *domain.Session      `json:"-"`
	Anomaly  *domain.AnomalyEvent `json:"anomaly,omitempty"`
	Locked   bool                 `json:"locked"`
	UnlockAt *time.Time           `json:"unlock_at,omitempty"`
}

type AuthDeps struct {
	Users        repository.UserRepository
	Audit        repository.AuditLogRepository
	Flags        repository.AccountFlagsRepository
	Hasher       PasswordHasher
	Guard        *CredentialPolicyGuard
	Sessions     *SessionRegistry
	Detector     *AnomalyDetector
	Orchestrator *SecurityResponseOrchestrator
	Gate         *AccessGate
	Tokens       *TokenService
}

// AuthService layers password login on the credential guard, anomaly detection and the
// session registry.
type AuthService struct {
	users        repository.UserRepository
	audit        repository.AuditLogRepository
	flags        repository.AccountFlagsRepository
	hasher       PasswordHasher
	guard        *CredentialPolicyGuard
	sessions     *SessionRegistry
	detector     *AnomalyDetector
	orchestrator *SecurityResponseOrchestrator
	gate         *AccessGate
	tokens       *TokenService
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthService(deps AuthDeps, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:        deps.Users,
		audit:        deps.Audit,
		flags:        deps.Flags,
		hasher:       deps.Hasher,
		guard:        deps.Guard,
		sessions:     deps.Sessions,
		detector:     deps.Detector,
		orchestrator: deps.Orchestrator,
		gate:         deps.Gate,
		tokens:       deps.Tokens,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate verifies credentials and opens a session. A guard lockout returns a result
// with Locked set together with ErrAccountLocked.
func (s *AuthService) Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := observability.StartSpan(ctx, "auth.authenticate")
	defer span.End()

	if err := s.gate.CheckIP(ctx, req.IP); err != nil {
		s.loginOutcome(ctx, "ip_blocked", 0, req.IP)
		return nil, err
	}
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordFailure(ctx, nil, req.IP, "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, storageErr("auth.find_user", err)
	}
	if err := s.gate.CheckLockdown(ctx, user.Role); err != nil {
		s.loginOutcome(ctx, "lockdown", user.ID, req.IP)
		return nil, err
	}
	flags, err := s.flags.Get(ctx, user.ID)
	if err != nil {
		return nil, storageErr("auth.flags", err)
	}
	if flags.Locked {
		s.loginOutcome(ctx, "account_locked", user.ID, req.IP)
		return &LoginResult{Locked: true}, ErrAccountLocked
	}
	status, err := s.guard.IsLocked(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		s.loginOutcome(ctx, "locked_out", user.ID, req.IP)
		return &LoginResult{Locked: true, UnlockAt: status.UnlockAt}, ErrAccountLocked
	}

	ok, err := s.hasher.Matches(user.PasswordHash, req.Password)
	if err != nil || !ok {
		if err := s.guard.RecordAttempt(ctx, user.ID, false); err != nil {
			return nil, err
		}
		s.recordFailure(ctx, uintRef(user.ID), req.IP, "bad_password")
		status, err := s.guard.IsLocked(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if status.Locked {
			return &LoginResult{Locked: true, UnlockAt: status.UnlockAt}, ErrInvalidCredentials
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.guard.RecordAttempt(ctx, user.ID, true); err != nil {
		return nil, err
	}
	// Evaluated before the LOGIN row below so the current IP does not count as known.
	anomaly := s.detector.DetectLoginAnomaly(ctx, user.ID, req.IP, req.UserAgent)

	tokens, err := s.tokens.Mint(user)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.CreateSession(ctx, user.ID, tokens.SessionRef, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	if flags.ReauthRequired {
		if err := s.flags.SetReauthRequired(ctx, user.ID, false); err != nil {
			return nil, storageErr("auth.clear_reauth", err)
		}
	}
	s.writeAudit(ctx, auditEntry(domain.AuditActionLogin, uintRef(user.ID), domain.AuditTargetUser, userTarget(user.ID), req.IP,
		map[string]any{"userAgent": req.UserAgent}, s.now()))
	if anomaly != nil {
		if _, err := s.detector.HandleAnomaly(ctx, *anomaly); err != nil {
			s.logger.WarnContext(ctx, "anomaly response failed",
				"module", "auth",
				"operation", "authenticate",
				"user_id", user.ID,
				"error", err,
			)
		}
	}
	s.loginOutcome(ctx, "success", user.ID, req.IP)
	return &LoginResult{User: user, Tokens: &tokens, Session: session, Anomaly: anomaly}, nil
}

// ChangePassword applies the strength and reuse rules, then appends the new hash to history.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next, ip string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return storageErr("auth.find_user", err)
	}
	if ok, err := s.hasher.Matches(user.PasswordHash, current); err != nil || !ok {
		return ErrInvalidCredentials
	}
	if res := s.guard.ValidateStrength(next); !res.Valid {
		return &ValidationError{Errors: res.Errors}
	}
	if same, _ := s.hasher.Matches(user.PasswordHash, next); same {
		return ErrPasswordReused
	}
	reused, err := s.guard.CheckReuse(ctx, userID, next)
	if err != nil {
		return err
	}
	if reused {
		return ErrPasswordReused
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return storageErr("auth.update_password", err)
	}
	if err := s.guard.SavePasswordHistory(ctx, userID, hash); err != nil {
		return err
	}
	s.writeAudit(ctx, auditEntry(domain.AuditActionPasswordChanged, uintRef(userID), domain.AuditTargetUser, userTarget(userID), ip, nil, s.now()))
	return nil
}

// RegisterUser creates an account whose password passes the strength rules and seeds its history.
func (s *AuthService) RegisterUser(ctx context.Context, username, email, password, role string) (*domain.User, error) {
	var problems []string
	if strings.TrimSpace(username) == "" {
		problems = append(problems, "username is required")
	}
	if !strings.Contains(email, "@") {
		problems = append(problems, "email is invalid")
	}
	problems = append(problems, s.guard.ValidateStrength(password).Errors...)
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	switch _, err := s.users.FindByUsername(ctx, strings.TrimSpace(username)); {
	case err == nil:
		return nil, &ValidationError{Errors: []string{"username is already taken"}}
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, storageErr("auth.find_user", err)
	}
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user := &domain.User{
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storageErr("auth.create_user", err)
	}
	if err := s.guard.SavePasswordHistory(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	return user, nil
}

// recordFailure writes LOGIN_FAILED and lets the orchestrator evaluate the source IP.
func (s *AuthService) recordFailure(ctx context.Context, actorID *uint, ip, reason string) {
	s.writeAudit(ctx, auditEntry(domain.AuditActionLoginFailed, actorID, domain.AuditTargetUser, "", ip,
		map[string]any{"reason": reason}, s.now()))
	var userID uint
	if actorID != nil {
		userID = *actorID
	}
	s.loginOutcome(ctx, "failure", userID, ip)
	if _, err := s.orchestrator.HandleBruteForceAttack(ctx, ip); err != nil {
		s.logger.WarnContext(ctx, "brute force evaluation failed",
			"module", "auth",
			"operation", "authenticate",
			"ip", ip,
			"error", err,
		)
	}
}

func (s *AuthService) writeAudit(ctx context.Context, entry *domain.AuditLog) {
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			"module", "auth",
			"operation", strings.ToLower(entry.Action),
			"error", err,
		)
	}
}

func (s *AuthService) loginOutcome(ctx context.Context, outcome string, userID uint, ip string) {
	observability.RecordAuthLogin(ctx, outcome)
	s.logger.InfoContext(ctx, "login attempt",
		"module", "auth",
		"operation", "authenticate",
		"outcome", outcome,
		"user_id", userID,
		"ip", ip,
	)
}
