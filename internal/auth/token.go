package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/creatorhub/escrow-ledger/internal/actor"
)

var ErrInvalidToken = errors.New("invalid access token")

// Claims is the access token payload. Subject carries the user id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 access token for act.
func Issue(secret []byte, act actor.Actor, ttl time.Duration, now time.Time) (string, error) {
	if act.UserID == "" {
		return "", errors.New("token subject is empty")
	}
	claims := Claims{
		Roles: act.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   act.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse verifies the token signature and expiry and returns the actor it names.
func Parse(token string, secret []byte) (actor.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return actor.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return actor.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return actor.New(claims.Subject, claims.Roles...), nil
}
