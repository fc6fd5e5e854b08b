package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/config"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "campus-events-api", AccessTTL: time.Minute})

	token, expiresAt, err := svc.Issue(&models.Profile{ID: "college-1", Email: "c@campus.test"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "college-1", claims.UserID)
	assert.Equal(t, "c@campus.test", claims.Email)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "campus-events-api"})
	other := NewTokenService(config.JWTConfig{Secret: "other", Issuer: "campus-events-api"})
	foreign := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "someone-else"})

	signedElsewhere, _, err := other.Issue(&models.Profile{ID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(signedElsewhere)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))

	wrongIssuer, _, err := foreign.Issue(&models.Profile{ID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))

	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := svc.Issue(&models.Profile{ID: "u1"})
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(expired)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))

	_, err = svc.ValidateToken("not-a-token")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))

	_, _, err = svc.Issue(nil)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}

func TestTokenServiceRejectsOtherAlgorithms(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret"})
	claims := &models.JWTClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))
}

func TestTokenServiceFallsBackToSubject(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret"})
	claims := &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "student-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	parsed, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "student-1", parsed.UserID)
}
