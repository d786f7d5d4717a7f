package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a session token is malformed, forged or revoked.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a session token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenConfig holds session token settings.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Claims are the custom claims carried by a session token.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(config TokenConfig) *TokenManager {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "taskd"
	}
	return &TokenManager{config: config, now: time.Now}
}

// TTL returns how long an issued token stays valid.
func (m *TokenManager) TTL() time.Duration {
	return m.config.TTL
}

// Generate signs a token for the given user and session and returns it
// with its expiry.
func (m *TokenManager) Generate(userID, sessionID string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.config.TTL)
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate verifies the token signature and expiry and returns its claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
