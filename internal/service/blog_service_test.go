package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlogService(t *testing.T, h *harness) *BlogService {
	t.Helper()
	svc, err := NewBlogService(h.deps)
	require.NoError(t, err)
	svc.clock = h.clock()
	return svc
}

func TestBlogService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("draft", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)

		blog, err := svc.Create(ctx, actorOf(author), BlogInput{
			Title:   " Hello ",
			Content: "body",
			Tags:    []string{"Go", "go", " tips "},
		})

		require.NoError(t, err)
		assert.Equal(t, "Hello", blog.Title)
		assert.Equal(t, []string{"go", "tips"}, blog.Tags)
		assert.Equal(t, domain.PublishStatusDraft, blog.Status)
		assert.Empty(t, h.emitter.types())
	})

	t.Run("publish now", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)

		blog, err := svc.Create(ctx, actorOf(author), BlogInput{Title: "Hello", Content: "body", Publish: true})

		require.NoError(t, err)
		assert.Equal(t, domain.PublishStatusPublished, blog.Status)
		require.NotNil(t, blog.PublishedAt)
		assert.Equal(t, h.now, *blog.PublishedAt)
		assert.Equal(t, []string{events.TaskSearchIndex, events.BlogPublished}, h.emitter.types())
	})

	t.Run("scheduled", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		at := h.now.Add(2 * time.Hour)

		blog, err := svc.Create(ctx, actorOf(author), BlogInput{Title: "Hello", Content: "body", ScheduledAt: &at})

		require.NoError(t, err)
		assert.Equal(t, domain.PublishStatusDraft, blog.Status)
		assert.Equal(t, domain.ScheduleStatusScheduled, blog.ScheduleStatus)
		assert.Equal(t, at, *blog.ScheduledAt)
	})

	t.Run("errors", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		past := h.now.Add(-time.Minute)
		future := h.now.Add(time.Minute)

		_, err := svc.Create(ctx, Actor{}, BlogInput{Title: "t", Content: "c"})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = svc.Create(ctx, actorOf(author), BlogInput{Title: "t", Content: "c", Publish: true, ScheduledAt: &future})
		assert.ErrorIs(t, err, ErrScheduleConflict)

		_, err = svc.Create(ctx, actorOf(author), BlogInput{Title: "t", Content: "c", ScheduledAt: &past})
		assert.ErrorIs(t, err, domain.ErrScheduleInPast)

		_, err = svc.Create(ctx, actorOf(author), BlogInput{Title: "", Content: "c"})
		assert.ErrorIs(t, err, domain.ErrEmptyTitle)
	})
}

func TestBlogService_GetVisibility(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	reader := h.addUser(t, "bob", domain.RoleUser)
	admin := h.addUser(t, "root", domain.RoleAdmin)
	draft := h.addBlog(t, author, domain.PublishStatusDraft)
	published := h.addBlog(t, author, domain.PublishStatusPublished)

	tests := []struct {
		name    string
		actor   Actor
		blog    uuid.UUID
		visible bool
	}{
		{"anonymous reads published", Actor{}, published.ID, true},
		{"anonymous cannot read draft", Actor{}, draft.ID, false},
		{"other user cannot read draft", actorOf(reader), draft.ID, false},
		{"author reads draft", actorOf(author), draft.ID, true},
		{"admin reads draft", actorOf(admin), draft.ID, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tc.actor, tc.blog)
			if !tc.visible {
				assert.ErrorIs(t, err, store.ErrBlogNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.blog, got.ID)
		})
	}

	_, cached, _ := h.cache.Get(ctx, published.ID)
	assert.True(t, cached, "published posts are cached after a read")
	_, cached, _ = h.cache.Get(ctx, draft.ID)
	assert.False(t, cached, "drafts are never cached")
}

func TestBlogService_GetServesFromCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	blog := h.addBlog(t, author, domain.PublishStatusPublished)

	cachedCopy := *blog
	cachedCopy.Title = "from cache"
	require.NoError(t, h.cache.Set(ctx, &cachedCopy))

	got, err := svc.Get(ctx, Actor{}, blog.ID)

	require.NoError(t, err)
	assert.Equal(t, "from cache", got.Title)
}

func TestBlogService_UpdateAndPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	other := h.addUser(t, "bob", domain.RoleUser)
	blog := h.addBlog(t, author, domain.PublishStatusDraft)

	title := "Renamed"
	_, err := svc.Update(ctx, actorOf(other), blog.ID, BlogUpdate{Title: &title})
	assert.ErrorIs(t, err, store.ErrBlogNotFound, "other users cannot see the draft at all")

	updated, err := svc.Update(ctx, actorOf(author), blog.ID, BlogUpdate{Title: &title, Tags: []string{"A", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, []string{"a", "b"}, updated.Tags)
	assert.Empty(t, h.emitter.types(), "drafts are not indexed")

	published, err := svc.Publish(ctx, actorOf(author), blog.ID)
	require.NoError(t, err)
	assert.True(t, published.IsPublished())
	assert.Equal(t, []string{events.TaskSearchIndex, events.BlogPublished}, h.emitter.types())

	_, err = svc.Publish(ctx, actorOf(author), blog.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.Update(ctx, actorOf(other), blog.ID, BlogUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestBlogService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("queues deletion", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)

		require.NoError(t, svc.Delete(ctx, actorOf(author), blog.ID))

		assert.Equal(t, domain.DeletionStatusPending, h.world.blog(blog.ID).DeletionStatus)
		assert.Equal(t, []string{events.TaskBlogDelete}, h.emitter.types())
		assert.Contains(t, h.cache.invalidated, blog.ID)

		_, err := svc.Get(ctx, actorOf(author), blog.ID)
		assert.ErrorIs(t, err, store.ErrBlogNotFound, "pending deletions are hidden")

		err = svc.Delete(ctx, actorOf(author), blog.ID)
		assert.ErrorIs(t, err, store.ErrBlogNotFound)
	})

	t.Run("admin may delete", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		admin := h.addUser(t, "root", domain.RoleAdmin)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)

		require.NoError(t, svc.Delete(ctx, actorOf(admin), blog.ID))
	})

	t.Run("other user may not", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		other := h.addUser(t, "bob", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)

		assert.ErrorIs(t, svc.Delete(ctx, actorOf(other), blog.ID), ErrNotOwned)
		assert.Equal(t, domain.DeletionStatusNone, h.world.blog(blog.ID).DeletionStatus)
	})

	t.Run("emission failure leaves the blog for the sweep", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)
		h.emitter.err = errors.New("queue full")

		require.NoError(t, svc.Delete(ctx, actorOf(author), blog.ID))

		stored := h.world.blog(blog.ID)
		assert.Equal(t, domain.DeletionStatusFailed, stored.DeletionStatus)
		assert.Equal(t, "queue full", stored.DeletionError)
	})
}

func TestBlogService_DeleteBlogCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("removes dependents in one transaction", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		reader := h.addUser(t, "bob", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)
		keep := h.addBlog(t, author, domain.PublishStatusPublished)

		comment, err := domain.NewComment(blog.ID, reader.ID, "hi")
		require.NoError(t, err)
		require.NoError(t, h.deps.Comments.Create(ctx, comment))
		like, err := domain.NewInteraction(blog.ID, reader.ID, domain.InteractionLike)
		require.NoError(t, err)
		require.NoError(t, h.deps.Interactions.Upsert(ctx, like))
		keepLike, err := domain.NewInteraction(keep.ID, reader.ID, domain.InteractionLike)
		require.NoError(t, err)
		require.NoError(t, h.deps.Interactions.Upsert(ctx, keepLike))
		report, err := domain.NewContentReport(blog.ID, reader.ID, domain.ReportReasonSpam, "")
		require.NoError(t, err)
		require.NoError(t, h.deps.Reports.Create(ctx, report))
		h.expectTx()

		require.NoError(t, svc.DeleteBlogCascade(ctx, blog.ID))

		assert.Nil(t, h.world.blog(blog.ID))
		assert.NotNil(t, h.world.blog(keep.ID))
		assert.Empty(t, h.world.comments)
		assert.Empty(t, h.world.reports)
		assert.Len(t, h.world.interactions, 1)
		assert.Equal(t, []uuid.UUID{blog.ID}, h.index.removed)
		assert.NoError(t, h.sql.ExpectationsWereMet())
	})

	t.Run("missing blog is success", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		h.expectTx()

		require.NoError(t, svc.DeleteBlogCascade(ctx, uuid.New()))
		assert.NoError(t, h.sql.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)
		h.world.errs["comments.DeleteByBlog"] = errors.New("deadlock detected")
		h.sql.ExpectBegin()
		h.sql.ExpectRollback()

		err := svc.DeleteBlogCascade(ctx, blog.ID)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete comments")
		assert.NotNil(t, h.world.blog(blog.ID))
		assert.Empty(t, h.index.removed)
		assert.NoError(t, h.sql.ExpectationsWereMet())
	})
}

func TestBlogService_MarkDeletionFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	blog := h.addBlog(t, author, domain.PublishStatusPublished)

	require.NoError(t, svc.MarkDeletionFailed(ctx, blog.ID, "boom"))
	assert.Equal(t, domain.DeletionStatusNone, h.world.blog(blog.ID).DeletionStatus, "only pending deletions fail")

	_, err := h.deps.Blogs.TransitionDeletion(ctx, blog.ID, domain.DeletionStatusNone, domain.DeletionStatusPending, "")
	require.NoError(t, err)
	require.NoError(t, svc.MarkDeletionFailed(ctx, blog.ID, "boom"))

	stored := h.world.blog(blog.ID)
	assert.Equal(t, domain.DeletionStatusFailed, stored.DeletionStatus)
	assert.Equal(t, "boom", stored.DeletionError)
}

func TestBlogService_PublishScheduledBlog(t *testing.T) {
	ctx := context.Background()

	newScheduled := func(t *testing.T, h *harness, author *domain.User) *domain.Blog {
		blog := h.addBlog(t, author, domain.PublishStatusDraft)
		at := h.now.Add(-time.Minute)
		blog.ScheduledAt = &at
		blog.ScheduleStatus = domain.ScheduleStatusQueued
		require.NoError(t, h.deps.Blogs.Update(ctx, blog))
		return blog
	}

	t.Run("publishes and notifies", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := newScheduled(t, h, author)

		require.NoError(t, svc.PublishScheduledBlog(ctx, blog.ID))

		stored := h.world.blog(blog.ID)
		assert.Equal(t, domain.PublishStatusPublished, stored.Status)
		assert.Equal(t, domain.ScheduleStatusPublished, stored.ScheduleStatus)
		assert.Equal(t,
			[]string{events.TaskSearchIndex, events.BlogPublished, events.TaskEmailSend},
			h.emitter.types())
		emails := h.emitter.emails(t)
		require.Len(t, emails, 1)
		assert.Equal(t, events.TemplateBlogPublished, emails[0].Template)
		assert.Equal(t, blog.Title, emails[0].Data["title"])
	})

	t.Run("skips posts published in the meantime", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)

		require.NoError(t, svc.PublishScheduledBlog(ctx, blog.ID))
		assert.Empty(t, h.emitter.types())
	})

	t.Run("missing blog", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)

		require.NoError(t, svc.PublishScheduledBlog(ctx, uuid.New()))
	})

	t.Run("store failure is retried", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := newScheduled(t, h, author)
		h.world.errs["blogs.Update"] = errors.New("connection refused")

		assert.Error(t, svc.PublishScheduledBlog(ctx, blog.ID))
	})

	t.Run("mark schedule failed", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := newScheduled(t, h, author)

		require.NoError(t, svc.MarkScheduleFailed(ctx, blog.ID, "boom"))
		assert.Equal(t, domain.ScheduleStatusFailed, h.world.blog(blog.ID).ScheduleStatus)
	})
}

func TestBlogService_IndexBlog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	published := h.addBlog(t, author, domain.PublishStatusPublished)
	draft := h.addBlog(t, author, domain.PublishStatusDraft)
	missing := uuid.New()

	require.NoError(t, svc.IndexBlog(ctx, published.ID))
	require.NoError(t, svc.IndexBlog(ctx, draft.ID))
	require.NoError(t, svc.IndexBlog(ctx, missing))

	assert.Equal(t, []uuid.UUID{published.ID}, h.index.indexed)
	assert.Equal(t, []uuid.UUID{draft.ID, missing}, h.index.removed)
}

func TestBlogService_Search(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	h.addBlog(t, author, domain.PublishStatusPublished)
	h.addBlog(t, author, domain.PublishStatusDraft)

	_, err := svc.Search(ctx, "   ", store.Page{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	results, err := svc.Search(ctx, "about go", store.Page{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBlogService_UploadImage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the URL", func(t *testing.T) {
		h := newHarness(t)
		uploader := &fakeUploader{url: "https://cdn.example.com/blogs/x.png"}
		h.deps.Uploader = uploader
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusPublished)

		updated, err := svc.UploadImage(ctx, actorOf(author), blog.ID, bytes.NewReader([]byte("png")))

		require.NoError(t, err)
		assert.Equal(t, uploader.url, updated.ImageURL)
		assert.Equal(t, "blogs/"+blog.ID.String(), uploader.prefix)
		assert.Equal(t, []string{events.TaskSearchIndex}, h.emitter.types())
	})

	t.Run("uploads disabled", func(t *testing.T) {
		h := newHarness(t)
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusDraft)

		_, err := svc.UploadImage(ctx, actorOf(author), blog.ID, bytes.NewReader([]byte("png")))

		assert.ErrorIs(t, err, storage.ErrUploadsDisabled)
	})

	t.Run("unsupported image", func(t *testing.T) {
		h := newHarness(t)
		h.deps.Uploader = &fakeUploader{err: storage.ErrUnsupportedImage}
		svc := newBlogService(t, h)
		author := h.addUser(t, "ada", domain.RoleUser)
		blog := h.addBlog(t, author, domain.PublishStatusDraft)

		_, err := svc.UploadImage(ctx, actorOf(author), blog.ID, bytes.NewReader([]byte("text")))

		assert.ErrorIs(t, err, storage.ErrUnsupportedImage)
	})
}

func TestBlogService_ListMine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newBlogService(t, h)
	author := h.addUser(t, "ada", domain.RoleUser)
	other := h.addUser(t, "bob", domain.RoleUser)
	h.addBlog(t, author, domain.PublishStatusDraft)
	h.addBlog(t, author, domain.PublishStatusPublished)
	h.addBlog(t, other, domain.PublishStatusPublished)

	mine, err := svc.ListMine(ctx, actorOf(author), store.Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	public, err := svc.List(ctx, BlogListFilter{})
	require.NoError(t, err)
	assert.Len(t, public, 2)

	_, err = svc.ListMine(ctx, Actor{}, store.Page{})
	assert.ErrorIs(t, err, ErrForbidden)
}
