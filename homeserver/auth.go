// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package homeserver

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionAuth mints and validates the HS256 session tokens used to sign
// homeserver writes. Embedders with an external key-management subsystem
// supply their own Session func instead.
type SessionAuth struct {
	secret []byte
}

// NewSessionAuth creates a session authenticator.
func NewSessionAuth(secret string) *SessionAuth {
	return &SessionAuth{secret: []byte(secret)}
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken issues a session token for userID.
func (a *SessionAuth) GenerateToken(userID string, expiration time.Duration) (string, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "franky",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a session token and returns its claims.
func (a *SessionAuth) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// TokenSource adapts a SessionAuth into the Session func a Client expects,
// re-minting short-lived tokens on demand.
func (a *SessionAuth) TokenSource(userID string, expiration time.Duration) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return a.GenerateToken(userID, expiration)
	}
}
