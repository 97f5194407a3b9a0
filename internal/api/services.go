package api

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/store"
)

// The handlers depend on these interfaces rather than on the concrete
// services so they can be tested in isolation.

// UserService is the account API used by AuthHandler and UserHandler.
type UserService interface {
	Register(ctx context.Context, email, username, password string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update service.ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context, actor service.Actor, page store.Page) ([]*domain.User, error)
	Get(ctx context.Context, actor service.Actor, userID uuid.UUID) (*domain.User, error)
	SetRole(ctx context.Context, actor service.Actor, userID uuid.UUID, role domain.Role) (*domain.User, error)
	SetStatus(ctx context.Context, actor service.Actor, userID uuid.UUID, status domain.UserStatus) (*domain.User, error)
	Delete(ctx context.Context, actor service.Actor, userID uuid.UUID) error
}

// BlogService is the post API used by BlogHandler.
type BlogService interface {
	Create(ctx context.Context, actor service.Actor, in service.BlogInput) (*domain.Blog, error)
	Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.Blog, error)
	List(ctx context.Context, filter service.BlogListFilter) ([]*domain.Blog, error)
	ListMine(ctx context.Context, actor service.Actor, page store.Page) ([]*domain.Blog, error)
	Update(ctx context.Context, actor service.Actor, id uuid.UUID, upd service.BlogUpdate) (*domain.Blog, error)
	Publish(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.Blog, error)
	UploadImage(ctx context.Context, actor service.Actor, id uuid.UUID, r io.Reader) (*domain.Blog, error)
	Delete(ctx context.Context, actor service.Actor, id uuid.UUID) error
	Search(ctx context.Context, query string, page store.Page) ([]*domain.Blog, error)
}

// CommentService is the comment API used by CommentHandler.
type CommentService interface {
	Create(ctx context.Context, actor service.Actor, blogID uuid.UUID, content string) (*domain.Comment, error)
	List(ctx context.Context, actor service.Actor, blogID uuid.UUID, page store.Page) ([]*domain.Comment, error)
	Update(ctx context.Context, actor service.Actor, commentID uuid.UUID, content string) (*domain.Comment, error)
	Delete(ctx context.Context, actor service.Actor, commentID uuid.UUID) error
}

// InteractionService is the reaction API used by InteractionHandler.
type InteractionService interface {
	Put(ctx context.Context, actor service.Actor, blogID uuid.UUID, kind domain.InteractionType) (*domain.InteractionSummary, error)
	Remove(ctx context.Context, actor service.Actor, blogID uuid.UUID) (*domain.InteractionSummary, error)
	Summary(ctx context.Context, actor service.Actor, blogID uuid.UUID) (*domain.InteractionSummary, error)
}

// ModerationService is the reporting and review API used by ModerationHandler.
type ModerationService interface {
	Report(
		ctx context.Context,
		actor service.Actor,
		blogID uuid.UUID,
		reason domain.ReportReason,
		details string,
	) (*domain.ContentReport, error)
	ListReports(
		ctx context.Context,
		actor service.Actor,
		status *domain.ReportStatus,
		page store.Page,
	) ([]*domain.ContentReport, error)
	ResolveReport(
		ctx context.Context,
		actor service.Actor,
		reportID uuid.UUID,
		status domain.ReportStatus,
	) (*domain.ContentReport, error)
	ReviewQueue(ctx context.Context, actor service.Actor, page store.Page) ([]*domain.Blog, error)
	Unpublish(ctx context.Context, actor service.Actor, blogID uuid.UUID, reason string) (*domain.Blog, error)
	Republish(ctx context.Context, actor service.Actor, blogID uuid.UUID) (*domain.Blog, error)
}

// TicketService is the support API used by TicketHandler.
type TicketService interface {
	Create(
		ctx context.Context,
		actor service.Actor,
		subject, description string,
		category domain.TicketCategory,
	) (*domain.SupportTicket, error)
	ListMine(ctx context.Context, actor service.Actor, page store.Page) ([]*domain.SupportTicket, error)
	Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.SupportTicket, error)
	List(
		ctx context.Context,
		actor service.Actor,
		status *domain.TicketStatus,
		page store.Page,
	) ([]*domain.SupportTicket, error)
	Update(ctx context.Context, actor service.Actor, id uuid.UUID, upd service.TicketUpdate) (*domain.SupportTicket, error)
}

var (
	_ UserService        = (*service.UserService)(nil)
	_ BlogService        = (*service.BlogService)(nil)
	_ CommentService     = (*service.CommentService)(nil)
	_ InteractionService = (*service.InteractionService)(nil)
	_ ModerationService  = (*service.ModerationService)(nil)
	_ TicketService      = (*service.TicketService)(nil)
)
