package jwt

import (
	"errors"
	"fmt"
	"time"

	"eventfinder_auth/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Manager mints and verifies the access/refresh token pair. The two token
// kinds are signed with distinct secrets so compromise of one does not
// compromise the other.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(cfg config.Tokens) *Manager {
	return &Manager{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
	}
}

func (m *Manager) NewAccessToken(userID string) (string, error) {
	return newToken(userID, m.accessSecret, m.accessTTL)
}

func (m *Manager) NewRefreshToken(userID string) (string, error) {
	return newToken(userID, m.refreshSecret, m.refreshTTL)
}

// ParseAccessToken returns the user id carried by a valid access token.
// Any signature mismatch, malformed token or elapsed expiry is ErrInvalidToken.
func (m *Manager) ParseAccessToken(token string) (string, error) {
	return parseToken(token, m.accessSecret)
}

func (m *Manager) ParseRefreshToken(token string) (string, error) {
	return parseToken(token, m.refreshSecret)
}

func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func newToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	const op = "jwt.newToken"

	now := time.Now()

	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func parseToken(tokenStr string, secret []byte) (string, error) {
	const op = "jwt.parseToken"

	claims := jwt.MapClaims{}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}

	return sub, nil
}
