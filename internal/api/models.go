package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID       uuid.UUID   `json:"user_id"`
	Role         domain.Role `json:"role"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	// ExpiresAt is the RFC 3339 time the access token expires
	ExpiresAt string `json:"expires_at"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// MessageResponse is returned by endpoints that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

// UpdateProfileRequest changes the caller's profile. Omitted fields are kept.
type UpdateProfileRequest struct {
	Username  *string `json:"username"   validate:"omitempty,min=3,max=32"`
	Bio       *string `json:"bio"        validate:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url"`
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
}

// UserResponse is the public shape of a user.
type UserResponse struct {
	ID        uuid.UUID         `json:"id"`
	Email     string            `json:"email,omitempty"`
	Username  string            `json:"username"`
	Role      domain.Role       `json:"role"`
	Status    domain.UserStatus `json:"status"`
	Bio       string            `json:"bio,omitempty"`
	AvatarURL string            `json:"avatar_url,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		Status:    u.Status,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// SetRoleRequest is the admin payload for PATCH /admin/users/{id}/role.
type SetRoleRequest struct {
	Role domain.Role `json:"role" validate:"required,oneof=user admin"`
}

// SetStatusRequest is the admin payload for PATCH /admin/users/{id}/status.
type SetStatusRequest struct {
	Status domain.UserStatus `json:"status" validate:"required,oneof=active suspended"`
}

// CreateBlogRequest creates a post. ScheduledAt and Publish are exclusive.
type CreateBlogRequest struct {
	Title       string     `json:"title"        validate:"required,max=200"`
	Content     string     `json:"content"      validate:"required"`
	Tags        []string   `json:"tags"         validate:"max=10"`
	Publish     bool       `json:"publish"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// UpdateBlogRequest edits a post. Omitted fields are kept.
type UpdateBlogRequest struct {
	Title   *string  `json:"title"   validate:"omitempty,max=200"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"    validate:"omitempty,max=10"`
}

// CommentRequest creates or edits a comment.
type CommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// InteractionRequest is the payload for PUT /blogs/{id}/interaction.
type InteractionRequest struct {
	Type domain.InteractionType `json:"type" validate:"required,oneof=like dislike"`
}

// ReportRequest files a content report.
type ReportRequest struct {
	Reason  domain.ReportReason `json:"reason"  validate:"required"`
	Details string              `json:"details" validate:"max=1000"`
}

// ResolveReportRequest closes a report.
type ResolveReportRequest struct {
	Status domain.ReportStatus `json:"status" validate:"required,oneof=resolved dismissed"`
}

// UnpublishRequest is the admin payload for taking a post down.
type UnpublishRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// CreateTicketRequest opens a support ticket.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"     validate:"required,max=200"`
	Description string                `json:"description" validate:"required,max=5000"`
	Category    domain.TicketCategory `json:"category"    validate:"required"`
}

// UpdateTicketRequest is the admin payload for answering a ticket.
type UpdateTicketRequest struct {
	Status   *domain.TicketStatus `json:"status"`
	Response *string              `json:"response" validate:"omitempty,max=5000"`
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newListResponse[T any](items []T, page store.Page) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: page.Limit, Offset: page.Offset}
}
