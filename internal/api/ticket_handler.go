package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/service"
)

// TicketHandler handles support tickets for users and admins.
type TicketHandler struct {
	tickets TicketService
	logger  *slog.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(tickets TicketService, logger *slog.Logger) *TicketHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TicketHandler")
	}
	return &TicketHandler{
		tickets: tickets,
		logger:  logger.With(slog.String("component", "ticket_handler")),
	}
}

// CreateTicket handles POST /tickets.
func (h *TicketHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateTicketRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	ticket, err := h.tickets.Create(r.Context(), actor, req.Subject, req.Description, req.Category)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create ticket")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, ticket)
}

// ListMyTickets handles GET /tickets.
func (h *TicketHandler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	tickets, err := h.tickets.ListMine(r.Context(), actor, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tickets")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(tickets, page))
}

// GetTicket handles GET /tickets/{id}.
func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	ticket, err := h.tickets.Get(r.Context(), actor, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get ticket")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ticket)
}

// ListTickets handles GET /admin/tickets?status=.
func (h *TicketHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	var status *domain.TicketStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.TicketStatus(v)
		if !s.Valid() {
			HandleAPIError(w, r, domain.ErrInvalidTicketStatus, "")
			return
		}
		status = &s
	}
	tickets, err := h.tickets.List(r.Context(), actor, status, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tickets")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(tickets, page))
}

// UpdateTicket handles PATCH /admin/tickets/{id}.
func (h *TicketHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req UpdateTicketRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	ticket, err := h.tickets.Update(r.Context(), actor, id, service.TicketUpdate{
		Status:   req.Status,
		Response: req.Response,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update ticket")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ticket)
}
