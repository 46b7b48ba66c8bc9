package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenKind    = errors.New("token kind mismatch")
	ErrTokenSubject = errors.New("token subject is not a user id")
)

type tokenKind string

const (
	accessKind  tokenKind = "access"
	refreshKind tokenKind = "refresh"
)

// Claims binds a token to a user and, for access tokens, to the session that minted it.
type Claims struct {
	TokenType  string `json:"token_type"`
	Role       string `json:"role,omitempty"`
	SessionRef string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// UserID decodes the numeric subject.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenSubject
	}
	return uint(id), nil
}

// JWTManager signs HS256 tokens with separate keys per kind. The refresh token jti is the
// session token reference and access tokens repeat it in sid, so revoking the session
// invalidates both.
type JWTManager struct {
	issuer   string
	audience string
	keys     map[tokenKind][]byte
	now      func() time.Time
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		keys: map[tokenKind][]byte{
			accessKind:  []byte(accessSecret),
			refreshKind: []byte(refreshSecret),
		},
		now: time.Now,
	}
}

// SignRefreshToken returns the signed token and its jti.
func (m *JWTManager) SignRefreshToken(userID uint, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	signed, err := m.sign(refreshKind, Claims{}, userID, jti, ttl)
	return signed, jti, err
}

func (m *JWTManager) SignAccessToken(userID uint, role, sessionRef string, ttl time.Duration) (string, error) {
	return m.sign(accessKind, Claims{Role: role, SessionRef: sessionRef}, userID, uuid.NewString(), ttl)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, accessKind)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, refreshKind)
}

func (m *JWTManager) sign(kind tokenKind, claims Claims, userID uint, jti string, ttl time.Duration) (string, error) {
	issued := m.now()
	claims.TokenType = string(kind)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Audience:  jwt.ClaimStrings{m.audience},
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		ID:        jti,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.keys[kind])
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (m *JWTManager) parse(raw string, kind tokenKind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.keys[kind], nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != string(kind) {
		return nil, fmt.Errorf("%w: got %q want %q", ErrTokenKind, claims.TokenType, kind)
	}
	return claims, nil
}
