// Package auth decodes the cookie-borne session token issued by the
// authentication subsystem. Issuance and refresh live elsewhere; this
// service only verifies.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal carried by a session token.
type Identity struct {
	UserID      int
	DisplayName string
}

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier validates HMAC-signed session tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses the token and extracts the identity claims.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID == 0 {
		return Identity{}, ErrInvalidToken
	}
	name, _ := claims["display_name"].(string)

	return Identity{UserID: int(userID), DisplayName: name}, nil
}

// StripBearer removes a "Bearer " prefix when present.
func StripBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}
