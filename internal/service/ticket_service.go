package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

// TicketUpdate is an admin change to a ticket. Nil fields are kept.
type TicketUpdate struct {
	Status   *domain.TicketStatus
	Response *string
}

// TicketService manages support tickets.
type TicketService struct {
	tickets store.TicketStore
	users   store.UserStore
	notify  notifier
	logger  *slog.Logger
	clock   clock
}

// NewTicketService creates a TicketService from d.
func NewTicketService(d Deps) (*TicketService, error) {
	if err := checkDeps(
		dep{"tickets", d.Tickets},
		dep{"users", d.Users},
		dep{"emitter", d.Emitter},
	); err != nil {
		return nil, err
	}
	log := d.logger("ticket_service")
	return &TicketService{
		tickets: d.Tickets,
		users:   d.Users,
		notify:  notifier{emitter: d.Emitter, logger: log},
		logger:  log,
	}, nil
}

// Create opens a ticket and emails a confirmation to the actor.
func (s *TicketService) Create(
	ctx context.Context,
	actor Actor,
	subject, description string,
	category domain.TicketCategory,
) (*domain.SupportTicket, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	ticket, err := domain.NewSupportTicket(actor.UserID, subject, description, category)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, NewServiceError("ticket", "create", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("ticket created",
		"ticket_id", ticket.ID,
		"user_id", actor.UserID,
		"category", category)
	s.notify.emit(ctx, events.TicketCreated, events.TicketRef{
		TicketID: ticket.ID,
		UserID:   actor.UserID,
		Category: string(category),
	})
	s.emailOwner(ctx, ticket, events.TemplateTicketReceived)
	return ticket, nil
}

// ListMine returns the actor's tickets.
func (s *TicketService) ListMine(ctx context.Context, actor Actor, page store.Page) ([]*domain.SupportTicket, error) {
	if actor.IsAnonymous() {
		return nil, ErrForbidden
	}
	tickets, err := s.tickets.ListByUser(ctx, actor.UserID, page.Normalize())
	if err != nil {
		return nil, NewServiceError("ticket", "list_mine", err)
	}
	return tickets, nil
}

// Get returns a ticket to its owner or an admin.
func (s *TicketService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*domain.SupportTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("ticket", "get", err)
	}
	if !actor.Owns(ticket.UserID) && !actor.IsAdmin() {
		// Other users' tickets do not exist as far as the caller can tell.
		return nil, store.ErrTicketNotFound
	}
	return ticket, nil
}

// List returns all tickets, optionally only those with status. Admin only.
func (s *TicketService) List(
	ctx context.Context,
	actor Actor,
	status *domain.TicketStatus,
	page store.Page,
) ([]*domain.SupportTicket, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if status != nil && !status.Valid() {
		return nil, domain.ErrInvalidTicketStatus
	}
	tickets, err := s.tickets.List(ctx, status, page.Normalize())
	if err != nil {
		return nil, NewServiceError("ticket", "list", err)
	}
	return tickets, nil
}

// Update changes a ticket's status or response and emails the owner. Admin only.
func (s *TicketService) Update(
	ctx context.Context,
	actor Actor,
	id uuid.UUID,
	upd TicketUpdate,
) (*domain.SupportTicket, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		ticket.Status = *upd.Status
	}
	if upd.Response != nil {
		ticket.AdminResponse = strings.TrimSpace(*upd.Response)
	}
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	ticket.UpdatedAt = s.clock.now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("ticket", "update", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("ticket updated",
		"ticket_id", id,
		"status", ticket.Status,
		"admin_id", actor.UserID)
	s.emailOwner(ctx, ticket, events.TemplateTicketUpdated)
	return ticket, nil
}

func (s *TicketService) emailOwner(ctx context.Context, ticket *domain.SupportTicket, template string) {
	user, err := s.users.GetByID(ctx, ticket.UserID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to load ticket owner for email",
			"error", err,
			"ticket_id", ticket.ID)
		return
	}
	s.notify.email(ctx, user.Email, template, map[string]string{
		"username":  user.Username,
		"subject":   ticket.Subject,
		"ticket_id": ticket.ID.String(),
		"status":    string(ticket.Status),
		"response":  ticket.AdminResponse,
	})
}
