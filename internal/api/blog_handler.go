package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service"
)

// multipartOverhead is allowed on top of the image size for form boundaries
// and part headers.
const multipartOverhead = 64 << 10

// BlogHandler handles blog post requests.
type BlogHandler struct {
	blogs          BlogService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewBlogHandler creates a BlogHandler. Uploaded images larger than
// maxUploadBytes are rejected with 413.
func NewBlogHandler(blogs BlogService, maxUploadBytes int64, logger *slog.Logger) *BlogHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for BlogHandler")
	}
	return &BlogHandler{
		blogs:          blogs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "blog_handler")),
	}
}

// CreateBlog handles POST /blogs.
func (h *BlogHandler) CreateBlog(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateBlogRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	blog, err := h.blogs.Create(r.Context(), actor, service.BlogInput{
		Title:       req.Title,
		Content:     req.Content,
		Tags:        req.Tags,
		Publish:     req.Publish,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create blog")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("blog created",
		slog.String("blog_id", blog.ID.String()),
		slog.String("status", string(blog.Status)))
	shared.RespondWithJSON(w, r, http.StatusCreated, blog)
}

// ListBlogs handles GET /blogs. Only published posts are listed; tag and
// author narrow the result.
func (h *BlogHandler) ListBlogs(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	filter := service.BlogListFilter{
		Tag:  strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tag"))),
		Page: page,
	}
	if author := r.URL.Query().Get("author"); author != "" {
		id, err := uuid.Parse(author)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("author", "has invalid format", domain.ErrInvalidID), "")
			return
		}
		filter.AuthorID = &id
	}

	blogs, err := h.blogs.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list blogs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(blogs, page))
}

// SearchBlogs handles GET /blogs/search?q=.
func (h *BlogHandler) SearchBlogs(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	blogs, err := h.blogs.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to search blogs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newListResponse(blogs, page))
}

// GetBlog handles GET /blogs/{id}. Anonymous callers only see published posts.
func (h *BlogHandler) GetBlog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	blog, err := h.blogs.Get(r.Context(), actorFromRequest(r), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get blog")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}

// UpdateBlog handles PUT /blogs/{id}.
func (h *BlogHandler) UpdateBlog(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req UpdateBlogRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	blog, err := h.blogs.Update(r.Context(), actor, id, service.BlogUpdate{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update blog")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}

// PublishBlog handles POST /blogs/{id}/publish.
func (h *BlogHandler) PublishBlog(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	blog, err := h.blogs.Publish(r.Context(), actor, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to publish blog")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}

// DeleteBlog handles DELETE /blogs/{id}. The post disappears immediately and
// its data is removed by a background job, hence 202.
func (h *BlogHandler) DeleteBlog(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.blogs.Delete(r.Context(), actor, id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete blog")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, MessageResponse{Message: "Blog deletion scheduled"})
}

// UploadImage handles POST /blogs/{id}/image with a multipart "image" field.
func (h *BlogHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := handleActorAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			HandleAPIError(w, r, NewAppError(http.StatusRequestEntityTooLarge, "Image is too large", err), "")
		default:
			HandleAPIError(w, r, NewAppError(http.StatusBadRequest, "Multipart field \"image\" is required", err), "")
		}
		return
	}
	defer func() {
		_ = file.Close()
	}()
	if header.Size > h.maxUploadBytes {
		HandleAPIError(w, r, NewAppError(http.StatusRequestEntityTooLarge, "Image is too large", nil), "")
		return
	}

	blog, err := h.blogs.UploadImage(r.Context(), actor, id, file)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload image")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, blog)
}
