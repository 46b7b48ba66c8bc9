package service

import (
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/security"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionRef       string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Identity is what a verified access token asserts.
type Identity struct {
	UserID     uint
	Role       string
	SessionRef string
}

func (i Identity) IsAdmin() bool { return i.Role == domain.RoleAdmin }

// TokenService mints token pairs whose refresh jti doubles as the session reference.
type TokenService struct {
	jwtMgr     *security.JWTManager
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultSessionTTL
	}
	return &TokenService{jwtMgr: jwtMgr, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (s *TokenService) Mint(user *domain.User) (TokenPair, error) {
	refresh, ref, err := s.jwtMgr.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.jwtMgr.SignAccessToken(user.ID, user.Role, ref, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.now().UTC()
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionRef:       ref,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// ParseAccess verifies raw and returns its identity. Any failure is ErrInvalidToken.
func (s *TokenService) ParseAccess(raw string) (*Identity, error) {
	claims, err := s.jwtMgr.ParseAccessToken(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidToken
	}
	id, err := claims.UserID()
	if err != nil || claims.SessionRef == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: id, Role: claims.Role, SessionRef: claims.SessionRef}, nil
}
