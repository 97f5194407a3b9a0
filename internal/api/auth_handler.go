package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/quill-api/internal/api/middleware"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
)

// Attempt counter actions guarded by middleware.AttemptLimiter.
const (
	AttemptLogin          = "login"
	AttemptForgotPassword = "forgot"
	AttemptResetPassword  = "reset"
)

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	users         UserService
	jwtService    auth.JWTService
	attempts      rediscache.AttemptCounter
	tokenLifetime time.Duration
	cookieName    string
	cookieSecure  bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
// attempts may be nil when login attempts are not counted.
func NewAuthHandler(
	users UserService,
	jwtService auth.JWTService,
	attempts rediscache.AttemptCounter,
	cfg config.AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AuthHandler")
	}
	return &AuthHandler{
		users:         users,
		jwtService:    jwtService,
		attempts:      attempts,
		tokenLifetime: time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		cookieName:    cfg.CookieName,
		cookieSecure:  cfg.CookieSecure,
		logger:        logger.With(slog.String("component", "auth_handler")),
		now:           time.Now,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	h.issueTokens(w, r, user, http.StatusCreated)
}

// Login handles POST /auth/login. It sets the access token cookie as well as
// returning the tokens in the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Info("login failed",
			slog.String("email", redact.Email(req.Email)),
			slog.String("error", redact.Error(err)))
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}

	if h.attempts != nil {
		if err := h.attempts.Reset(r.Context(), middleware.AttemptKey(AttemptLogin, r)); err != nil {
			log.Warn("failed to reset login attempts", slog.String("error", redact.Error(err)))
		}
	}

	h.issueTokens(w, r, user, http.StatusOK)
}

// RefreshToken handles POST /auth/refresh. The user is reloaded so role and
// suspension changes take effect on refresh.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.GetProfile(r.Context(), claims.UserID)
	if store.IsNotFoundError(err) {
		HandleAPIError(w, r, auth.ErrInvalidRefreshToken, "")
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to refresh token")
		return
	}
	if user.Status == domain.UserStatusSuspended {
		HandleAPIError(w, r, service.ErrAccountSuspended, "")
		return
	}

	h.issueTokens(w, r, user, http.StatusOK)
}

// Logout handles POST /auth/logout by expiring the cookie. Bearer tokens
// stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword handles POST /auth/forgot-password. The response is the
// same whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		HandleAPIError(w, r, err, "Failed to request password reset")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, MessageResponse{
		Message: "If the email is registered, a reset link has been sent",
	})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		HandleAPIError(w, r, err, "Failed to reset password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// issueTokens writes a fresh token pair for user and sets the auth cookie.
func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, user *domain.User, status int) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	accessToken, err := h.jwtService.GenerateToken(r.Context(), user.ID, user.Role)
	if err != nil {
		log.Error("failed to generate token",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", user.ID.String()))
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}
	refreshToken, err := h.jwtService.GenerateRefreshToken(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to generate refresh token",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", user.ID.String()))
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	expiresAt := h.now().Add(h.tokenLifetime).UTC()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    accessToken,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.tokenLifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	shared.RespondWithJSON(w, r, status, AuthResponse{
		UserID:       user.ID,
		Role:         user.Role,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
	})
}
