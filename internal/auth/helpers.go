package auth

import (
	"errors"
	"strings"
	"time"

	"Fly8Backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("token is missing")
	ErrInvalidToken = errors.New("token is invalid or expired")
)

type TokenVerifier struct {
	key []byte
}

func NewTokenVerifier(cfg *config.AppConfig) *TokenVerifier {
	return &TokenVerifier{key: []byte(cfg.JWTSecret)}
}

// Verify parses an HS256 token and returns the principal it names.
func (v *TokenVerifier) Verify(tokenString string) (Principal, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	p := claims.Principal()
	if p.ID == "" || !p.Role.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// GenerateJWT signs a token for p. Token issuance belongs to the identity provider; this exists for tooling and tests.
func GenerateJWT(secret string, p Principal, duration time.Duration) (string, error) {
	claims := &JWTClaims{
		ID:          p.ID,
		AccountType: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
