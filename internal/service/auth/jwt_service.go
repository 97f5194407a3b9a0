package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// TokenType distinguishes the purposes a signed token can serve.
type TokenType string

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeReset   TokenType = "reset"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token carrying the user's role.
	GenerateToken(ctx context.Context, userID uuid.UUID, role domain.Role) (string, error)

	// ValidateToken validates an access token and extracts its claims.
	// Returns ErrExpiredToken, ErrInvalidToken or ErrWrongTokenType on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateRefreshToken creates a longer-lived token used to obtain new access tokens.
	GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateRefreshToken validates a refresh token and extracts its claims.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateResetToken creates a short-lived password reset token bound to
	// the account's current password through passwordStamp (see PasswordStamp).
	GenerateResetToken(ctx context.Context, userID uuid.UUID, passwordStamp string) (string, error)

	// ValidateResetToken validates a password reset token.
	// Every failure is reported as ErrInvalidResetToken.
	ValidateResetToken(ctx context.Context, tokenString string) (*Claims, error)

	// ResetTokenLifetime reports how long reset tokens stay valid.
	ResetTokenLifetime() time.Duration
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is only set on access tokens.
	Role domain.Role `json:"role,omitempty"`

	// TokenType indicates the purpose of the token.
	TokenType TokenType `json:"type,omitempty"`

	// PasswordStamp identifies the password a reset token was issued against.
	PasswordStamp string `json:"pws,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// IsAdmin reports whether the token grants admin rights.
func (c *Claims) IsAdmin() bool {
	return c.Role == domain.RoleAdmin
}
