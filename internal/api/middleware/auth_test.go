package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-queue/internal/api/shared"
	"github.com/phrazzld/scry-queue/internal/auth"
	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		authHeader      string
		validator       stubValidator
		expectedStatus  int
		expectedSubject string
	}{
		{
			name:            "valid token",
			authHeader:      "Bearer valid-token",
			validator:       stubValidator{claims: &auth.Claims{Subject: "ops"}},
			expectedStatus:  http.StatusOK,
			expectedSubject: "ops",
		},
		{
			name:            "lowercase scheme",
			authHeader:      "bearer valid-token",
			validator:       stubValidator{claims: &auth.Claims{Subject: "ops"}},
			expectedStatus:  http.StatusOK,
			expectedSubject: "ops",
		},
		{
			name:           "missing auth header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid auth format",
			authHeader:     "InvalidFormat",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong scheme",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer expired-token",
			validator:      stubValidator{err: auth.ErrExpiredToken},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer invalid-token",
			validator:      stubValidator{err: auth.ErrInvalidToken},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "validator failure",
			authHeader:     "Bearer some-token",
			validator:      stubValidator{err: errors.New("boom")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject, _ = shared.GetSubject(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			NewAuthMiddleware(tt.validator).Authenticate(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedSubject, subject)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()
	base := slog.New(slog.NewTextHandler(io.Discard, nil))

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
	})

	NewTraceMiddleware(base)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, traceID, 32)

	withRequestID := chimiddleware.RequestID(NewTraceMiddleware(base)(next))
	withRequestID.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, traceID, "/")
}
