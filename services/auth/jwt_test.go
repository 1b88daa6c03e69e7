package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-payment/models"
)

var shopper = models.Shopper{UserID: 7, Username: "ana", Email: "ana@example.com"}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService("", "issuer")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	svc, err := NewJWTService("s3cret", "storefront")
	require.NoError(t, err)

	token, err := svc.GenerateToken(shopper, time.Minute)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, shopper, *got)
}

func TestValidateTokenExpired(t *testing.T) {
	svc, _ := NewJWTService("s3cret", "storefront")
	token, err := svc.GenerateToken(shopper, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenRejects(t *testing.T) {
	svc, _ := NewJWTService("s3cret", "storefront")

	other, _ := NewJWTService("other", "storefront")
	foreign, _ := other.GenerateToken(shopper, time.Minute)
	_, err := svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, _ := NewJWTService("s3cret", "someone-else")
	token, _ := wrongIssuer.GenerateToken(shopper, time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    1,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storefront",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := refresh.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
