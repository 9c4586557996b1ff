// Package tokens implements the Token Service: issuance and verification
// of the short-lived liveness token binding (employee, session,
// terminal). Built on the golang-jwt/v5 HS256 + kid-header shape, with
// the claim set narrowed to sub/sid/tid.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("LIVENESS_TOKEN_INVALID")
	ErrExpiredToken = errors.New("LIVENESS_TOKEN_EXPIRED")
)

// Claims is the liveness token payload: {sub, sid, tid, iat, exp}, plus a
// random jti set by Issue.
type Claims struct {
	EmployeeID string `json:"sub"`
	SessionID  string `json:"sid"`
	TerminalID string `json:"tid"`
	jwt.RegisteredClaims
}

type Manager struct {
	signingKey []byte
	ttl        time.Duration
}

// NewManager builds a Manager. secret must be non-empty — the caller
// (internal/config) is responsible for failing loud before construction
// if the HMAC secret is missing.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{signingKey: []byte(secret), ttl: ttl}
}

// Issue mints a liveness token bound to (employeeID, sessionID, terminalID).
func (m *Manager) Issue(employeeID, sessionID, terminalID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.ttl)
	claims := Claims{
		EmployeeID: employeeID,
		SessionID:  sessionID,
		TerminalID: terminalID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "v1"

	signed, err := token.SignedString(m.signingKey)
	return signed, exp, err
}

// Verify checks signature, algorithm, and expiry and returns the claim set.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
