package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestParseToken_Valid(t *testing.T) {
	tok, err := GenerateToken("capture-01", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "capture-01", claims.Source)
	assert.Equal(t, TokenIssuer, claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
}

func TestGenerateToken_NoExpiry(t *testing.T) {
	tok, err := GenerateToken("capture", testSecret, 0)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("capture", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "wrong-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	claims := &Claims{
		Source: "capture",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseToken_WrongIssuer(t *testing.T) {
	claims := &Claims{Source: "x", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	assert.Error(t, err)

	_, err = ParseToken("", testSecret)
	assert.Error(t, err)
}
