package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of ingest tokens.
const TokenIssuer = "battlerecorder"

// Claims is the ingest token payload. Source names the capture client.
type Claims struct {
	Source string `json:"source"`
	jwt.RegisteredClaims
}

// GenerateToken signs an ingest token for source. ttl <= 0 means the token
// never expires.
func GenerateToken(source, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Source: source,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   TokenIssuer,
			Subject:  source,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates an ingest token and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(TokenIssuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
