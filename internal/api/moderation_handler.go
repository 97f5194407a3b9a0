package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
)

// ModerationHandler handles content reports and the admin review endpoints.
type ModerationHandler struct {
	moderation ModerationService
	logger     *slog.Logger
}

// NewModerationHandler creates a ModerationHandler.
func NewModerationHandler(moderation ModerationService, logger *slog.Logger) *ModerationHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ModerationHandler")
	}
	return &ModerationHandler{
		moderation: moderation,
		logger:     logger.With(slog.String("component", "moderation_handler")),
	}
}

// ReportBlog handles POST /blogs/{id}/reports.
func (h *ModerationHandler) ReportBlog(w http.ResponseWriter, r *http.Request) {
	actor, blogID, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req ReportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	report, err := h.moderation.Report(r.Context(), actor, blogID, req.Reason, req.Details)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to report blog")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, report)
}

// ListReports handles GET /admin/reports?status=.
func (h *ModerationHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	var status *domain.ReportStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.ReportStatus(v)
		status = &s
	}
	reports, err := h.moderation.ListReports(r.Context(), actor, status, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list reports")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(reports, page))
}

// ResolveReport handles PATCH /admin/reports/{id}.
func (h *ModerationHandler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req ResolveReportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	report, err := h.moderation.ResolveReport(r.Context(), actor, id, req.Status)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resolve report")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// ReviewQueue handles GET /admin/blogs/review.
func (h *ModerationHandler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	blogs, err := h.moderation.ReviewQueue(r.Context(), actor, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load review queue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(blogs, page))
}

// UnpublishBlog handles POST /admin/blogs/{id}/unpublish.
func (h *ModerationHandler) UnpublishBlog(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req UnpublishRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	blog, err := h.moderation.Unpublish(r.Context(), actor, id, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to unpublish blog")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("blog unpublished",
		slog.String("admin_id", actor.UserID.String()),
		slog.String("blog_id", blog.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}

// RepublishBlog handles POST /admin/blogs/{id}/republish.
func (h *ModerationHandler) RepublishBlog(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	blog, err := h.moderation.Republish(r.Context(), actor, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to republish blog")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("blog republished",
		slog.String("admin_id", actor.UserID.String()),
		slog.String("blog_id", blog.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}
