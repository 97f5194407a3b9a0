package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockJWTService implements auth.JWTService; only ValidateToken is used here.
type mockJWTService struct {
	auth.JWTService
	validateFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *mockJWTService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	return m.validateFn(ctx, token)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func claimsEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := shared.GetClaims(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("X-User-ID", claims.UserID.String())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	jwt := &mockJWTService{validateFn: func(_ context.Context, token string) (*auth.Claims, error) {
		switch token {
		case "valid-token":
			return &auth.Claims{UserID: userID, Role: domain.RoleUser}, nil
		case "expired-token":
			return nil, auth.ErrExpiredToken
		case "refresh-token":
			return nil, auth.ErrWrongTokenType
		case "broken":
			return nil, errors.New("keyring unavailable")
		default:
			return nil, auth.ErrInvalidToken
		}
	}}
	m := NewAuthMiddleware(jwt, "access_token", discardLogger())

	tests := []struct {
		name           string
		authHeader     string
		cookie         string
		expectedStatus int
		expectUser     bool
	}{
		{name: "valid bearer token", authHeader: "Bearer valid-token", expectedStatus: http.StatusOK, expectUser: true},
		{name: "valid cookie", cookie: "valid-token", expectedStatus: http.StatusOK, expectUser: true},
		{name: "missing credentials", expectedStatus: http.StatusUnauthorized},
		{name: "invalid auth format", authHeader: "InvalidFormat", expectedStatus: http.StatusUnauthorized},
		{name: "expired token", authHeader: "Bearer expired-token", expectedStatus: http.StatusUnauthorized},
		{name: "invalid token", authHeader: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "refresh token used as access token", authHeader: "Bearer refresh-token", expectedStatus: http.StatusUnauthorized},
		{name: "unexpected validation failure", authHeader: "Bearer broken", expectedStatus: http.StatusInternalServerError},
		{
			name:           "header wins over cookie",
			authHeader:     "Bearer expired-token",
			cookie:         "valid-token",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tc.cookie})
			}
			rr := httptest.NewRecorder()

			m.Authenticate(claimsEcho(t)).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			if tc.expectUser {
				assert.Equal(t, userID.String(), rr.Header().Get("X-User-ID"))
			}
		})
	}
}

func TestAuthMiddleware_OptionalAuth(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	jwt := &mockJWTService{validateFn: func(_ context.Context, token string) (*auth.Claims, error) {
		if token == "valid-token" {
			return &auth.Claims{UserID: userID}, nil
		}
		return nil, auth.ErrExpiredToken
	}}
	m := NewAuthMiddleware(jwt, "access_token", discardLogger())
	h := m.OptionalAuth(claimsEcho(t))

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("bad token continues anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer stale")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("valid token attaches claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, userID.String(), rr.Header().Get("X-User-ID"))
	})
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(&mockJWTService{}, "", discardLogger())
	h := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{name: "no claims", want: http.StatusUnauthorized},
		{name: "regular user", claims: &auth.Claims{UserID: uuid.New(), Role: domain.RoleUser}, want: http.StatusForbidden},
		{name: "admin", claims: &auth.Claims{UserID: uuid.New(), Role: domain.RoleAdmin}, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			if tc.claims != nil {
				req = req.WithContext(shared.WithClaims(req.Context(), tc.claims))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestNewAuthMiddleware_NilLoggerPanics(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() {
		NewAuthMiddleware(&mockJWTService{}, "access_token", nil)
	})
}

func TestTrace_AttachesTraceIDAndLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	var traceID string
	h := Trace(base)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContextOrDefault(r.Context(), nil).Info("inside handler")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Len(t, traceID, 2*shared.TraceIDLength)
	assert.Contains(t, buf.String(), "trace_id="+traceID)
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	t.Parallel()

	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/blogs", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blogs", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
