package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
)

// ProfileUpdate carries the optional profile fields a user may change.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Username  *string
	Bio       *string
	AvatarURL *string
}

// UserService provides account management: registration, authentication,
// profile changes, password resets and the admin user operations.
type UserService struct {
	db        store.TxBeginner
	users     store.UserStore
	blogs     store.BlogStore
	hasher    auth.PasswordHasher
	tokens    auth.JWTService
	purger    *blogPurger
	notify    notifier
	publicURL string
	logger    *slog.Logger
	clock     clock
}

// NewUserService creates a UserService from d.
func NewUserService(d Deps) (*UserService, error) {
	if err := checkDeps(
		dep{"users", d.Users},
		dep{"hasher", d.Hasher},
		dep{"tokens", d.Tokens},
		dep{"emitter", d.Emitter},
	); err != nil {
		return nil, err
	}
	log := d.logger("user_service")
	purger, err := newBlogPurger(d, log)
	if err != nil {
		return nil, err
	}
	return &UserService{
		db:        d.DB,
		users:     d.Users,
		blogs:     d.Blogs,
		hasher:    d.Hasher,
		tokens:    d.Tokens,
		purger:    purger,
		notify:    notifier{emitter: d.Emitter, logger: log},
		publicURL: strings.TrimRight(d.PublicURL, "/"),
		logger:    log,
	}, nil
}

// Register creates an active account and queues a welcome email.
func (s *UserService) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(email, username, password)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, NewServiceError("user", "register", err)
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		if store.IsDuplicateError(err) {
			return nil, err
		}
		log.Error("failed to create user", "error", err)
		return nil, NewServiceError("user", "register", err)
	}

	log.Info("user registered", "user_id", user.ID, "email", redact.Email(user.Email))
	s.notify.email(ctx, user.Email, events.TemplateWelcome, map[string]string{
		"username": user.Username,
		"app_url":  s.publicURL,
	})
	return user, nil
}

// Authenticate checks credentials and returns the account.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("login for unknown email", "email", redact.Email(email))
			return nil, ErrInvalidCredentials
		}
		return nil, NewServiceError("user", "authenticate", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if user.IsSuspended() {
		return nil, ErrAccountSuspended
	}
	return user, nil
}

// GetProfile returns the account with the given ID.
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("user", "get_profile", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.Username != nil {
		user.Username = strings.TrimSpace(*update.Username)
	}
	if update.Bio != nil {
		user.Bio = strings.TrimSpace(*update.Bio)
	}
	if update.AvatarURL != nil {
		avatar := strings.TrimSpace(*update.AvatarURL)
		if avatar != "" {
			if u, err := url.ParseRequestURI(avatar); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return nil, domain.NewValidationError("avatar_url", "must be an http(s) URL", domain.ErrInvalidFormat)
			}
		}
		user.AvatarURL = avatar
	}
	user.UpdatedAt = s.clock.now()

	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		if store.IsDuplicateError(err) || store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("user", "update_profile", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.HashedPassword, current); err != nil {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, user, next, "change_password")
}

// RequestPasswordReset emails a reset link. Unknown and suspended accounts
// are ignored silently so the endpoint does not reveal which emails exist.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("password reset for unknown email", "email", redact.Email(email))
			return nil
		}
		return NewServiceError("user", "request_password_reset", err)
	}
	if user.IsSuspended() {
		log.Info("password reset ignored for suspended account", "user_id", user.ID)
		return nil
	}

	token, err := s.tokens.GenerateResetToken(ctx, user.ID, auth.PasswordStamp(user.HashedPassword))
	if err != nil {
		return NewServiceError("user", "request_password_reset", err)
	}

	s.notify.email(ctx, user.Email, events.TemplatePasswordReset, map[string]string{
		"username":   user.Username,
		"reset_url":  s.publicURL + "/reset-password?token=" + url.QueryEscape(token),
		"expires_in": s.tokens.ResetTokenLifetime().String(),
	})
	log.Info("password reset requested", "user_id", user.ID)
	return nil
}

// ResetPassword sets a new password for the user named by a reset token.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.tokens.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return auth.ErrInvalidResetToken
		}
		return NewServiceError("user", "reset_password", err)
	}
	// A used token, or one issued before the last password change, no longer matches
	if !auth.MatchPasswordStamp(claims.PasswordStamp, user.HashedPassword) {
		logger.FromContextOrDefault(ctx, s.logger).Info("stale password reset token rejected", "user_id", user.ID)
		return auth.ErrInvalidResetToken
	}
	return s.setPassword(ctx, user, password, "reset_password")
}

func (s *UserService) setPassword(ctx context.Context, user *domain.User, password, op string) error {
	if err := domain.ValidatePassword(password); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return NewServiceError("user", op, err)
	}
	user.HashedPassword = hashed
	user.UpdatedAt = s.clock.now()
	if err := s.users.Update(ctx, user); err != nil {
		return NewServiceError("user", op, err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("password updated", "user_id", user.ID, "operation", op)
	return nil
}

// DeleteAccount removes the user together with all of their posts.
func (s *UserService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	var purged []uuid.UUID
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		ids, err := s.blogs.WithTx(tx).ListIDsByAuthor(ctx, userID)
		if err != nil {
			return fmt.Errorf("list blogs: %w", err)
		}
		for _, id := range ids {
			if err := s.purger.purgeTx(ctx, tx, id); err != nil {
				return err
			}
		}
		purged = ids
		return s.users.WithTx(tx).Delete(ctx, userID)
	})
	if err != nil {
		if store.IsNotFoundError(err) {
			return err
		}
		return NewServiceError("user", "delete_account", err)
	}

	s.purger.forget(ctx, purged...)
	logger.FromContextOrDefault(ctx, s.logger).Info("account deleted", "user_id", userID, "blogs", len(purged))
	return nil
}

// List returns every account. Admin only.
func (s *UserService) List(ctx context.Context, actor Actor, page store.Page) ([]*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	users, err := s.users.List(ctx, page.Normalize())
	if err != nil {
		return nil, NewServiceError("user", "list", err)
	}
	return users, nil
}

// Get returns any account. Admin only.
func (s *UserService) Get(ctx context.Context, actor Actor, userID uuid.UUID) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.GetProfile(ctx, userID)
}

// SetRole changes another user's role. Admin only.
func (s *UserService) SetRole(ctx context.Context, actor Actor, userID uuid.UUID, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	return s.adminUpdate(ctx, actor, userID, "set_role", func(u *domain.User) { u.Role = role })
}

// SetStatus suspends or reactivates another user. Admin only.
func (s *UserService) SetStatus(ctx context.Context, actor Actor, userID uuid.UUID, status domain.UserStatus) (*domain.User, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidUserStatus
	}
	return s.adminUpdate(ctx, actor, userID, "set_status", func(u *domain.User) { u.Status = status })
}

func (s *UserService) adminUpdate(
	ctx context.Context,
	actor Actor,
	userID uuid.UUID,
	op string,
	apply func(*domain.User),
) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if actor.UserID == userID {
		return nil, ErrSelfModeration
	}
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	apply(user)
	user.UpdatedAt = s.clock.now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, NewServiceError("user", op, err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("user updated by admin",
		"operation", op,
		"user_id", userID,
		"admin_id", actor.UserID,
		"role", user.Role,
		"status", user.Status)
	return user, nil
}

// Delete removes another user's account. Admin only.
func (s *UserService) Delete(ctx context.Context, actor Actor, userID uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if actor.UserID == userID {
		return ErrSelfModeration
	}
	return s.DeleteAccount(ctx, userID)
}
