package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/store"
)

// actorFromRequest returns the caller set by the auth middleware. Requests
// without claims yield the anonymous actor.
func actorFromRequest(r *http.Request) service.Actor {
	claims, ok := shared.GetClaims(r.Context())
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserID, Role: claims.Role}
}

// requireActor is actorFromRequest for routes that need a signed-in user.
// It writes a 401 and returns false when there is none.
func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor := actorFromRequest(r)
	if actor.IsAnonymous() {
		HandleAPIError(w, r, ErrUnauthenticated, "")
		return actor, false
	}
	return actor, true
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}

// handleActorAndPathUUID extracts the signed-in caller and a path UUID,
// writing the error response if either is missing.
func handleActorAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (service.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return actor, uuid.Nil, false
	}
	id, ok := pathUUID(w, r, paramName, log)
	return actor, id, ok
}

// pathUUID is getPathUUID that writes a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, paramName string, log *slog.Logger) (uuid.UUID, bool) {
	id, err := getPathUUID(r, paramName)
	if err != nil {
		if log == nil {
			log = logger.FromContextOrDefault(r.Context(), slog.Default())
		}
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

// pageFromQuery reads limit and offset query parameters.
func pageFromQuery(r *http.Request) (store.Page, error) {
	var page store.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, domain.NewValidationError("limit", "must be a non-negative integer", domain.ErrInvalidFormat)
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, domain.NewValidationError("offset", "must be a non-negative integer", domain.ErrInvalidFormat)
		}
		page.Offset = n
	}
	return page.Normalize(), nil
}

// decodeAndValidate reads a JSON body into v and runs its validate tags.
func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := shared.DecodeJSON(r, v); err != nil {
		return err
	}
	return shared.ValidateRequest(v)
}
