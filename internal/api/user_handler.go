package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service"
)

// UserHandler serves the caller's own account and the admin user endpoints.
type UserHandler struct {
	users  UserService
	blogs  BlogService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserService, blogs BlogService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for UserHandler")
	}
	return &UserHandler{
		users:  users,
		blogs:  blogs,
		logger: logger.With(slog.String("component", "user_handler")),
	}
}

// GetMe handles GET /users/me.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(r.Context(), actor.UserID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// UpdateMe handles PATCH /users/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), actor.UserID, service.ProfileUpdate{
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// ChangePassword handles PUT /users/me/password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := h.users.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		HandleAPIError(w, r, err, "Failed to change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMe handles DELETE /users/me. The account and everything it wrote
// are removed.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.users.DeleteAccount(r.Context(), actor.UserID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete account")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("account deleted",
		slog.String("user_id", actor.UserID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// MyBlogs handles GET /users/me/blogs, including drafts.
func (h *UserHandler) MyBlogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	blogs, err := h.blogs.ListMine(r.Context(), actor, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list blogs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(blogs, page))
}

// ListUsers handles GET /admin/users.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	users, err := h.users.List(r.Context(), actor, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list users")
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(out, page))
}

// GetUser handles GET /admin/users/{id}.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), actor, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get user")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// SetRole handles PATCH /admin/users/{id}/role.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req SetRoleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	user, err := h.users.SetRole(r.Context(), actor, id, req.Role)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to change role")
		return
	}
	h.audit(r, "user role changed", actor, user, slog.String("role", string(user.Role)))
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// SetStatus handles PATCH /admin/users/{id}/status.
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	user, err := h.users.SetStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to change status")
		return
	}
	h.audit(r, "user status changed", actor, user, slog.String("status", string(user.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// DeleteUser handles DELETE /admin/users/{id}.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) audit(r *http.Request, msg string, actor service.Actor, user *domain.User, attr slog.Attr) {
	logger.FromContextOrDefault(r.Context(), h.logger).Info(msg,
		slog.String("admin_id", actor.UserID.String()),
		slog.String("user_id", user.ID.String()),
		attr)
}
