package authsvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crrserver/core/internal/apperror"
)

// bearerTTL is the lifetime of a minted bearer token (§4.G: "exp=now+24h").
const bearerTTL = 24 * time.Hour

// TokenService mints and validates the core's bearer tokens: a JWT carrying only the
// registered "sub" and "exp" claims, generalized from the teacher's TokenService (which adds
// an Issuer claim the core has no use for, since every tenant shares one issuer).
type TokenService struct {
	secret []byte
}

// NewTokenService constructs a TokenService from the JWT signing secret loaded by
// internal/config; callers must enforce the minimum-length requirement before calling this.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret}
}

type claims struct {
	jwt.RegisteredClaims
}

// Mint signs a bearer token for userID, valid for 24 hours.
func (t *TokenService) Mint(userID string) (string, error) {
	now := time.Now()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(bearerTTL)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", apperror.DatabaseError(fmt.Errorf("signing bearer token: %w", err))
	}
	return signed, nil
}

// Validate parses and verifies tokenStr, rejecting any algorithm but HS256, and returns the
// subject (user id) on success.
func (t *TokenService) Validate(tokenStr string) (userID string, err error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized("bearer token expired")
		}
		return "", apperror.Unauthorized("invalid bearer token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", apperror.Unauthorized("invalid bearer token")
	}
	return c.Subject, nil
}
