package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters-long"

func TestNewTokenService(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService("short")
	assert.ErrorIs(t, err, ErrWeakSecret)

	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestTokenService_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	token, err := svc.GenerateToken(ctx, "worker-admin", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "worker-admin", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestTokenService_ValidateToken_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, err := NewTokenService(testSecret)
	require.NoError(t, err)

	other, err := NewTokenService("another-secret-that-is-also-32-characters-long")
	require.NoError(t, err)
	foreign, err := other.GenerateToken(ctx, "intruder", time.Hour)
	require.NoError(t, err)

	past, err := NewTokenService(testSecret)
	require.NoError(t, err)
	past.timeFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.GenerateToken(ctx, "late", time.Hour)
	require.NoError(t, err)

	early, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "early",
		NotBefore: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "forever",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"malformed", "not-a-token", ErrInvalidToken},
		{"wrong signature", foreign, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"not yet valid", early, ErrTokenNotYetValid},
		{"missing expiry", noExpiry, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(ctx, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
