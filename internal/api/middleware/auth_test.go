package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/digiflow/taskkeeper/internal/api/shared"
	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJWTService returns fixed claims or a fixed error
type stubJWTService struct {
	claims *auth.Claims
	err    error
	seen   string
}

func (s *stubJWTService) GenerateToken(context.Context, string) (string, error) {
	return "token", nil
}

func (s *stubJWTService) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	s.seen = token
	return s.claims, s.err
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		authHeader      string
		validateErr     error
		expectedStatus  int
		expectedMessage string
	}{
		{"valid token", "Bearer valid-token", nil, http.StatusOK, ""},
		{"lower case scheme", "bearer valid-token", nil, http.StatusOK, ""},
		{"missing auth header", "", nil, http.StatusUnauthorized, "Authorization header required"},
		{"invalid auth format", "InvalidFormat", nil, http.StatusUnauthorized, "Invalid authorization format"},
		{"basic auth", "Basic dXNlcjpwYXNz", nil, http.StatusUnauthorized, "Invalid authorization format"},
		{"expired token", "Bearer expired", auth.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"invalid token", "Bearer invalid", auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"not yet valid", "Bearer early", auth.ErrTokenNotYetValid, http.StatusUnauthorized, "Invalid token"},
		{"unexpected error", "Bearer token", errors.New("boom"), http.StatusInternalServerError, "Authentication error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			jwtService := &stubJWTService{claims: &auth.Claims{Subject: "ops"}, err: tt.validateErr}
			if tt.validateErr != nil {
				jwtService.claims = nil
			}

			var subject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject, _ = shared.GetSubject(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/tasks/empty", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			NewAuthMiddleware(jwtService).Authenticate(next).ServeHTTP(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "ops", subject)
				assert.Equal(t, "valid-token", jwtService.seen)
				return
			}

			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedMessage, body.Error)
			assert.Empty(t, subject)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	})

	rr := httptest.NewRecorder()
	NewTraceMiddleware(log)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	require.NotEmpty(t, traceID)
	logger.AssertLogContains(t, buf, "request started")
	logger.AssertLogContains(t, buf, "inside handler")
	logger.AssertLogField(t, buf, "trace_id", traceID)
}
