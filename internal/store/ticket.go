package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// TicketStore defines the interface for support ticket persistence.
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.SupportTicket) error

	// GetByID returns ErrTicketNotFound if the ticket does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error)

	Update(ctx context.Context, ticket *domain.SupportTicket) error

	// ListByUser returns a user's tickets, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]*domain.SupportTicket, error)

	// List returns all tickets, optionally filtered by status, newest first.
	List(ctx context.Context, status *domain.TicketStatus, page Page) ([]*domain.SupportTicket, error)

	WithTx(tx *sql.Tx) TicketStore
}
