package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
)

// InteractionHandler handles likes and dislikes.
type InteractionHandler struct {
	interactions InteractionService
	logger       *slog.Logger
}

// NewInteractionHandler creates an InteractionHandler.
func NewInteractionHandler(interactions InteractionService, logger *slog.Logger) *InteractionHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for InteractionHandler")
	}
	return &InteractionHandler{
		interactions: interactions,
		logger:       logger.With(slog.String("component", "interaction_handler")),
	}
}

// PutInteraction handles PUT /blogs/{id}/interaction and returns the new totals.
func (h *InteractionHandler) PutInteraction(w http.ResponseWriter, r *http.Request) {
	actor, blogID, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req InteractionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	summary, err := h.interactions.Put(r.Context(), actor, blogID, req.Type)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to save interaction")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// DeleteInteraction handles DELETE /blogs/{id}/interaction.
func (h *InteractionHandler) DeleteInteraction(w http.ResponseWriter, r *http.Request) {
	actor, blogID, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	summary, err := h.interactions.Remove(r.Context(), actor, blogID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to remove interaction")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// GetSummary handles GET /blogs/{id}/interactions.
func (h *InteractionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	blogID, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	summary, err := h.interactions.Summary(r.Context(), actorFromRequest(r), blogID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get interactions")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}
