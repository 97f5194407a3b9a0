package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/middleware"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthConfig = config.AuthConfig{
	TokenLifetimeMinutes: 60,
	CookieName:           "access_token",
	CookieSecure:         true,
}

func newTestAuthHandler(users UserService, jwt auth.JWTService, attempts rediscache.AttemptCounter) *AuthHandler {
	h := NewAuthHandler(users, jwt, attempts, testAuthConfig, testLogger())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func testUser(role domain.Role) *domain.User {
	return &domain.User{
		ID:       uuid.New(),
		Email:    "ada@example.com",
		Username: "ada",
		Role:     role,
		Status:   domain.UserStatusActive,
	}
}

func TestAuthHandler_Register(t *testing.T) {
	user := testUser(domain.RoleUser)

	tests := []struct {
		name        string
		body        interface{}
		registerErr error
		wantStatus  int
		wantError   string
	}{
		{
			name:       "success",
			body:       RegisterRequest{Email: "ada@example.com", Username: "ada", Password: "password123"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"email":"ada@example.com","username":"ada","password":"password123","admin":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
			wantError:  "Request body is required",
		},
		{
			name:       "short password",
			body:       RegisterRequest{Email: "ada@example.com", Username: "ada", Password: "short"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid Password: too short",
		},
		{
			name:        "email taken",
			body:        RegisterRequest{Email: "ada@example.com", Username: "ada", Password: "password123"},
			registerErr: store.ErrEmailExists,
			wantStatus:  http.StatusConflict,
			wantError:   "Email already exists",
		},
		{
			name:        "username rejected by domain",
			body:        RegisterRequest{Email: "ada@example.com", Username: "ada lovelace", Password: "password123"},
			registerErr: domain.ErrInvalidUsername,
			wantStatus:  http.StatusBadRequest,
			wantError:   domain.ErrInvalidUsername.Error(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users := &mockUserService{
				registerFn: func(_ context.Context, email, username, password string) (*domain.User, error) {
					if tc.registerErr != nil {
						return nil, tc.registerErr
					}
					return user, nil
				},
			}
			h := newTestAuthHandler(users, &mockJWTService{}, nil)
			rr := httptest.NewRecorder()

			h.Register(rr, newRequest(t, http.MethodPost, "/api/v1/auth/register", tc.body, service.Actor{}, nil))

			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			if tc.wantError != "" {
				assert.Contains(t, rr.Body.String(), tc.wantError)
			}
			if tc.wantStatus == http.StatusCreated {
				resp := decodeBody[AuthResponse](t, rr)
				assert.Equal(t, user.ID, resp.UserID)
				assert.Equal(t, "refresh-"+user.ID.String(), resp.RefreshToken)
				assert.Equal(t, "2026-03-01T13:00:00Z", resp.ExpiresAt)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	user := testUser(domain.RoleAdmin)
	users := &mockUserService{
		authenticateFn: func(_ context.Context, email, password string) (*domain.User, error) {
			switch password {
			case "password123":
				return user, nil
			case "suspended":
				return nil, service.ErrAccountSuspended
			default:
				return nil, service.ErrInvalidCredentials
			}
		},
	}

	t.Run("sets cookie and returns tokens", func(t *testing.T) {
		h := newTestAuthHandler(users, &mockJWTService{}, nil)
		rr := httptest.NewRecorder()

		h.Login(rr, newRequest(t, http.MethodPost, "/api/v1/auth/login",
			LoginRequest{Email: "ada@example.com", Password: "password123"}, service.Actor{}, nil))

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeBody[AuthResponse](t, rr)
		assert.Equal(t, domain.RoleAdmin, resp.Role)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "access_token", cookies[0].Name)
		assert.Equal(t, resp.AccessToken, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, 3600, cookies[0].MaxAge)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		h := newTestAuthHandler(users, &mockJWTService{}, nil)
		rr := httptest.NewRecorder()

		h.Login(rr, newRequest(t, http.MethodPost, "/api/v1/auth/login",
			LoginRequest{Email: "ada@example.com", Password: "nope"}, service.Actor{}, nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid email or password")
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("suspended account is 403", func(t *testing.T) {
		h := newTestAuthHandler(users, &mockJWTService{}, nil)
		rr := httptest.NewRecorder()

		h.Login(rr, newRequest(t, http.MethodPost, "/api/v1/auth/login",
			LoginRequest{Email: "ada@example.com", Password: "suspended"}, service.Actor{}, nil))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("success resets attempt counter", func(t *testing.T) {
		counter := rediscache.NewMemoryCounter(1, time.Hour)
		h := newTestAuthHandler(users, &mockJWTService{}, counter)

		req := newRequest(t, http.MethodPost, "/api/v1/auth/login",
			LoginRequest{Email: "ada@example.com", Password: "password123"}, service.Actor{}, nil)
		key := middleware.AttemptKey(AttemptLogin, req)
		allowed, _, err := counter.Hit(context.Background(), key)
		require.NoError(t, err)
		require.True(t, allowed)

		rr := httptest.NewRecorder()
		h.Login(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		allowed, _, err = counter.Hit(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, allowed, "counter should start over after a successful login")
	})
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	active := testUser(domain.RoleUser)
	suspended := testUser(domain.RoleUser)
	suspended.Status = domain.UserStatusSuspended
	gone := uuid.New()

	users := &mockUserService{
		getProfileFn: func(_ context.Context, id uuid.UUID) (*domain.User, error) {
			switch id {
			case active.ID:
				return active, nil
			case suspended.ID:
				return suspended, nil
			case gone:
				return nil, store.ErrUserNotFound
			}
			return nil, errors.New("db down")
		},
	}
	jwt := &mockJWTService{
		validateRefreshFn: func(_ context.Context, token string) (*auth.Claims, error) {
			switch token {
			case "expired":
				return nil, auth.ErrExpiredRefreshToken
			case "active":
				return &auth.Claims{UserID: active.ID}, nil
			case "suspended":
				return &auth.Claims{UserID: suspended.ID}, nil
			case "gone":
				return &auth.Claims{UserID: gone}, nil
			}
			return &auth.Claims{UserID: uuid.New()}, nil
		},
	}

	tests := []struct {
		token string
		want  int
	}{
		{"active", http.StatusOK},
		{"expired", http.StatusUnauthorized},
		{"suspended", http.StatusForbidden},
		{"gone", http.StatusUnauthorized},
		{"broken-db", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			h := newTestAuthHandler(users, jwt, nil)
			rr := httptest.NewRecorder()
			h.RefreshToken(rr, newRequest(t, http.MethodPost, "/api/v1/auth/refresh",
				RefreshTokenRequest{RefreshToken: tc.token}, service.Actor{}, nil))
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{}, &mockJWTService{}, nil)
	rr := httptest.NewRecorder()

	h.Logout(rr, newRequest(t, http.MethodPost, "/api/v1/auth/logout", nil, service.Actor{}, nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	var requested string
	users := &mockUserService{
		requestResetFn: func(_ context.Context, email string) error {
			requested = email
			return nil
		},
		resetFn: func(_ context.Context, token, _ string) error {
			if token != "good" {
				return auth.ErrInvalidResetToken
			}
			return nil
		},
	}
	h := newTestAuthHandler(users, &mockJWTService{}, nil)

	t.Run("forgot password always accepted", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ForgotPassword(rr, newRequest(t, http.MethodPost, "/api/v1/auth/forgot-password",
			ForgotPasswordRequest{Email: "nobody@example.com"}, service.Actor{}, nil))
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, "nobody@example.com", requested)
	})

	t.Run("reset with valid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ResetPassword(rr, newRequest(t, http.MethodPost, "/api/v1/auth/reset-password",
			ResetPasswordRequest{Token: "good", Password: "new-password"}, service.Actor{}, nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("reset with bad token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ResetPassword(rr, newRequest(t, http.MethodPost, "/api/v1/auth/reset-password",
			ResetPasswordRequest{Token: "bad", Password: "new-password"}, service.Actor{}, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid or expired reset token")
	})
}

func TestNewAuthHandler_NilLoggerPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewAuthHandler(&mockUserService{}, &mockJWTService{}, nil, testAuthConfig, nil)
	})
}
