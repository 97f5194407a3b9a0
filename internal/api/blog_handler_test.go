package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlog(author uuid.UUID, status domain.PublishStatus) *domain.Blog {
	return &domain.Blog{
		ID:             uuid.New(),
		AuthorID:       author,
		Title:          "Hello",
		Content:        "World",
		Tags:           []string{"go"},
		Status:         status,
		ScheduleStatus: domain.ScheduleStatusNone,
		DeletionStatus: domain.DeletionStatusNone,
	}
}

func TestBlogHandler_CreateBlog(t *testing.T) {
	actor := userActor()
	at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

	var got service.BlogInput
	blogs := &mockBlogService{
		createFn: func(_ context.Context, a service.Actor, in service.BlogInput) (*domain.Blog, error) {
			got = in
			if in.Publish && in.ScheduledAt != nil {
				return nil, service.ErrScheduleConflict
			}
			return testBlog(a.UserID, domain.PublishStatusDraft), nil
		},
	}
	h := NewBlogHandler(blogs, 1<<20, testLogger())

	t.Run("anonymous is 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.CreateBlog(rr, newRequest(t, http.MethodPost, "/api/v1/blogs",
			CreateBlogRequest{Title: "t", Content: "c"}, service.Actor{}, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("scheduled draft", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.CreateBlog(rr, newRequest(t, http.MethodPost, "/api/v1/blogs",
			CreateBlogRequest{Title: "t", Content: "c", Tags: []string{"Go"}, ScheduledAt: &at}, actor, nil))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		require.NotNil(t, got.ScheduledAt)
		assert.True(t, at.Equal(*got.ScheduledAt))
		assert.Equal(t, []string{"Go"}, got.Tags)
	})

	t.Run("publish and schedule conflict", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.CreateBlog(rr, newRequest(t, http.MethodPost, "/api/v1/blogs",
			CreateBlogRequest{Title: "t", Content: "c", Publish: true, ScheduledAt: &at}, actor, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing title", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.CreateBlog(rr, newRequest(t, http.MethodPost, "/api/v1/blogs",
			CreateBlogRequest{Content: "c"}, actor, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid Title: required field")
	})
}

func TestBlogHandler_GetBlog(t *testing.T) {
	published := testBlog(uuid.New(), domain.PublishStatusPublished)
	blogs := &mockBlogService{
		getFn: func(_ context.Context, _ service.Actor, id uuid.UUID) (*domain.Blog, error) {
			if id == published.ID {
				return published, nil
			}
			return nil, store.ErrBlogNotFound
		},
	}
	h := NewBlogHandler(blogs, 1<<20, testLogger())

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"found", published.ID.String(), http.StatusOK},
		{"hidden or missing", uuid.NewString(), http.StatusNotFound},
		{"bad id", "not-a-uuid", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.GetBlog(rr, newRequest(t, http.MethodGet, "/api/v1/blogs/"+tc.id, nil, service.Actor{},
				map[string]string{"id": tc.id}))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestBlogHandler_ListBlogs(t *testing.T) {
	author := uuid.New()
	var got service.BlogListFilter
	blogs := &mockBlogService{
		listFn: func(_ context.Context, filter service.BlogListFilter) ([]*domain.Blog, error) {
			got = filter
			return []*domain.Blog{testBlog(author, domain.PublishStatusPublished)}, nil
		},
	}
	h := NewBlogHandler(blogs, 1<<20, testLogger())

	rr := httptest.NewRecorder()
	h.ListBlogs(rr, newRequest(t, http.MethodGet,
		"/api/v1/blogs?tag=%20Go%20&author="+author.String()+"&limit=5&offset=10", nil, service.Actor{}, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "go", got.Tag)
	require.NotNil(t, got.AuthorID)
	assert.Equal(t, author, *got.AuthorID)
	assert.Equal(t, store.Page{Limit: 5, Offset: 10}, got.Page)

	resp := decodeBody[ListResponse[domain.Blog]](t, rr)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 5, resp.Limit)

	t.Run("bad author", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ListBlogs(rr, newRequest(t, http.MethodGet, "/api/v1/blogs?author=x", nil, service.Actor{}, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ListBlogs(rr, newRequest(t, http.MethodGet, "/api/v1/blogs?limit=-1", nil, service.Actor{}, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestBlogHandler_SearchBlogs(t *testing.T) {
	blogs := &mockBlogService{
		searchFn: func(_ context.Context, q string, _ store.Page) ([]*domain.Blog, error) {
			if q == "" {
				return nil, service.ErrEmptyQuery
			}
			return nil, nil
		},
	}
	h := NewBlogHandler(blogs, 1<<20, testLogger())

	rr := httptest.NewRecorder()
	h.SearchBlogs(rr, newRequest(t, http.MethodGet, "/api/v1/blogs/search?q=", nil, service.Actor{}, nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.SearchBlogs(rr, newRequest(t, http.MethodGet, "/api/v1/blogs/search?q=golang", nil, service.Actor{}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[],"limit":20,"offset":0}`, rr.Body.String())
}

func TestBlogHandler_DeleteBlog(t *testing.T) {
	owner := userActor()
	blog := testBlog(owner.UserID, domain.PublishStatusPublished)
	blogs := &mockBlogService{
		deleteFn: func(_ context.Context, a service.Actor, id uuid.UUID) error {
			if id != blog.ID {
				return store.ErrBlogNotFound
			}
			if !a.Owns(blog.AuthorID) && !a.IsAdmin() {
				return service.ErrNotOwned
			}
			return nil
		},
	}
	h := NewBlogHandler(blogs, 1<<20, testLogger())

	tests := []struct {
		name  string
		actor service.Actor
		id    uuid.UUID
		want  int
	}{
		{"owner", owner, blog.ID, http.StatusAccepted},
		{"admin", adminActor(), blog.ID, http.StatusAccepted},
		{"stranger", userActor(), blog.ID, http.StatusForbidden},
		{"missing", owner, uuid.New(), http.StatusNotFound},
		{"anonymous", service.Actor{}, blog.ID, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.DeleteBlog(rr, newRequest(t, http.MethodDelete, "/api/v1/blogs/"+tc.id.String(), nil, tc.actor,
				map[string]string{"id": tc.id.String()}))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func multipartImage(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "cover.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestBlogHandler_UploadImage(t *testing.T) {
	actor := userActor()
	blog := testBlog(actor.UserID, domain.PublishStatusDraft)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	var uploaded []byte
	blogs := &mockBlogService{
		uploadFn: func(_ context.Context, _ service.Actor, _ uuid.UUID, r io.Reader) (*domain.Blog, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			if len(data) > 0 && data[0] != 0x89 {
				return nil, storage.ErrUnsupportedImage
			}
			uploaded = data
			blog.ImageURL = "https://cdn.example.com/blogs/" + blog.ID.String() + "/cover.png"
			return blog, nil
		},
	}
	h := NewBlogHandler(blogs, 256, testLogger())
	params := map[string]string{"id": blog.ID.String()}

	upload := func(field string, content []byte) *httptest.ResponseRecorder {
		body, contentType := multipartImage(t, field, content)
		req := newRequest(t, http.MethodPost, "/api/v1/blogs/"+blog.ID.String()+"/image", nil, actor, params)
		req.Body = io.NopCloser(body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.UploadImage(rr, req)
		return rr
	}

	t.Run("png accepted", func(t *testing.T) {
		rr := upload("image", png)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, png, uploaded)
		assert.Contains(t, rr.Body.String(), "cover.png")
	})

	t.Run("wrong field name", func(t *testing.T) {
		rr := upload("file", png)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unsupported type", func(t *testing.T) {
		rr := upload("image", []byte("GIF? no, plain text"))
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		rr := upload("image", append(png, make([]byte, 1024)...))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}
