/*
Package token issues and parses session tokens.

A session token is a signed HS256 JWT bound to a single connection ID. The
signature proves the server issued it; the authenticator additionally keeps
the issued token bound to its connection, so a valid token replayed on a
different connection is still rejected.
*/
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionExpiration defines how long an issued session token stays valid.
	SessionExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "chatwire-server"
)

// SessionClaims is the claim set carried by a session token.
type SessionClaims struct {
	// ConnectionID is the connection the token was issued to.
	ConnectionID string `json:"cid"`

	jwt.StandardClaims
}

// Generate creates and signs a new session token for the given connection ID.
func Generate(connectionID string, secretKey string) (string, error) {
	now := time.Now()

	claims := &SessionClaims{
		ConnectionID: connectionID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(SessionExpiration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return t.SignedString([]byte(secretKey))
}

// Parse parses and validates a session token string using the provided
// secret key, returning its claims.
func Parse(tokenString string, secretKey string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !t.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}
