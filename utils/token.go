package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// JwtCustomClaim is the internal access token issued after a successful login.
// ProviderToken is the identity provider access token, re-validated on every request.
type JwtCustomClaim struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	ProviderToken string `json:"provider_token"`
	jwt.StandardClaims
}

type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, lifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

func (ti *TokenIssuer) Lifetime() time.Duration {
	return ti.lifetime
}

func (ti *TokenIssuer) JwtGenerate(username, email, providerToken string) (string, error) {
	now := ti.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		Username:      username,
		Email:         email,
		ProviderToken: providerToken,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: now.Add(ti.lifetime).Unix(),
			IssuedAt:  now.Unix(),
		},
	})

	token, err := t.SignedString(ti.secret)
	if err != nil {
		return "", err
	}

	return token, nil
}

// JwtValidate checks signature and expiry and returns the claims.
func (ti *TokenIssuer) JwtValidate(token string) (*JwtCustomClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		return nil, ErrorUnauthorized
	}
	if claims.Id == "" {
		return nil, errors.New("token has no id")
	}
	return claims, nil
}
