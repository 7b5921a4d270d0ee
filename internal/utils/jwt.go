package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultLeeway = 30 * time.Second
)

// TokenManager signs and verifies the credential pair. Both tokens are
// self-contained HS256 claim sets; refresh tokens additionally carry the
// session rotation generation. PreviousSecret lets verifiers accept tokens
// signed by the immediately prior key during a rotation grace window.
type TokenManager struct {
	Secret          []byte
	PreviousSecret  []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Leeway          time.Duration
	Clock           func() time.Time
}

type AccessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	SessionID  string `json:"sid"`
	Generation int64  `json:"gen"`
	TokenType  string `json:"typ"`
	jwt.RegisteredClaims
}

func (m TokenManager) IssueAccessToken(userID string, role string, sessionID string) (string, time.Duration, error) {
	ttl := m.AccessTokenTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	now := m.now()
	claims := AccessClaims{
		Role:      role,
		SessionID: sessionID,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

func (m TokenManager) IssueRefreshToken(userID string, sessionID string, generation int64) (string, time.Time, error) {
	ttl := m.RefreshTokenTTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	now := m.now()
	expiresAt := now.Add(ttl)
	claims := RefreshClaims{
		SessionID:  sessionID,
		Generation: generation,
		TokenType:  TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m TokenManager) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m TokenManager) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m TokenManager) parse(tokenString string, claims jwt.Claims) error {
	err := m.parseWithKey(tokenString, claims, m.Secret)
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) && len(m.PreviousSecret) > 0 {
		err = m.parseWithKey(tokenString, claims, m.PreviousSecret)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}

func (m TokenManager) parseWithKey(tokenString string, claims jwt.Claims, key []byte) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	}, jwt.WithLeeway(m.leeway()), jwt.WithTimeFunc(m.now))
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func (m TokenManager) leeway() time.Duration {
	if m.Leeway > 0 {
		return m.Leeway
	}
	return defaultLeeway
}

func (m TokenManager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}
