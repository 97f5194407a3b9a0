package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/search"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/require"
)

// world is the shared in-memory state behind the fake stores. Errors keyed by
// "store.Method" are returned by that method.
type world struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*domain.User
	blogs        map[uuid.UUID]*domain.Blog
	comments     map[uuid.UUID]*domain.Comment
	interactions map[[2]uuid.UUID]*domain.Interaction
	reports      map[uuid.UUID]*domain.ContentReport
	tickets      map[uuid.UUID]*domain.SupportTicket
	errs         map[string]error
}

func newWorld() *world {
	return &world{
		users:        map[uuid.UUID]*domain.User{},
		blogs:        map[uuid.UUID]*domain.Blog{},
		comments:     map[uuid.UUID]*domain.Comment{},
		interactions: map[[2]uuid.UUID]*domain.Interaction{},
		reports:      map[uuid.UUID]*domain.ContentReport{},
		tickets:      map[uuid.UUID]*domain.SupportTicket{},
		errs:         map[string]error{},
	}
}

func (w *world) fail(op string) error { return w.errs[op] }

func (w *world) blog(id uuid.UUID) *domain.Blog {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.blogs[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

// fakeUsers implements store.UserStore.
type fakeUsers struct{ w *world }

func (f fakeUsers) Create(_ context.Context, u *domain.User) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("users.Create"); err != nil {
		return err
	}
	for _, existing := range f.w.users {
		if existing.Email == u.Email {
			return store.ErrEmailExists
		}
		if existing.Username == u.Username {
			return store.ErrUsernameExists
		}
	}
	cp := *u
	f.w.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	u, ok := f.w.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, u := range f.w.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f fakeUsers) Update(_ context.Context, u *domain.User) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, ok := f.w.users[u.ID]; !ok {
		return store.ErrUserNotFound
	}
	cp := *u
	f.w.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("users.Delete"); err != nil {
		return err
	}
	if _, ok := f.w.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(f.w.users, id)
	return nil
}

func (f fakeUsers) List(_ context.Context, _ store.Page) ([]*domain.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	out := make([]*domain.User, 0, len(f.w.users))
	for _, u := range f.w.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f fakeUsers) WithTx(*sql.Tx) store.UserStore { return f }

// fakeBlogs implements store.BlogStore.
type fakeBlogs struct{ w *world }

func (f fakeBlogs) Create(_ context.Context, b *domain.Blog) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("blogs.Create"); err != nil {
		return err
	}
	cp := *b
	f.w.blogs[b.ID] = &cp
	return nil
}

func (f fakeBlogs) GetByID(_ context.Context, id uuid.UUID) (*domain.Blog, error) {
	if b := f.w.blog(id); b != nil {
		return b, nil
	}
	return nil, store.ErrBlogNotFound
}

func (f fakeBlogs) Update(_ context.Context, b *domain.Blog) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("blogs.Update"); err != nil {
		return err
	}
	existing, ok := f.w.blogs[b.ID]
	if !ok {
		return store.ErrBlogNotFound
	}
	cp := *b
	cp.DeletionStatus = existing.DeletionStatus
	cp.DeletionError = existing.DeletionError
	f.w.blogs[b.ID] = &cp
	return nil
}

func (f fakeBlogs) List(_ context.Context, filter store.BlogFilter) ([]*domain.Blog, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.Blog
	for _, b := range f.w.blogs {
		if b.IsDeleted() {
			continue
		}
		if filter.AuthorID != nil && b.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeBlogs) Search(_ context.Context, q string, _ store.Page) ([]*domain.Blog, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.Blog
	for _, b := range f.w.blogs {
		if b.IsPublished() && strings.Contains(strings.ToLower(b.Title), strings.ToLower(q)) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeBlogs) Delete(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("blogs.Delete"); err != nil {
		return err
	}
	if _, ok := f.w.blogs[id]; !ok {
		return store.ErrBlogNotFound
	}
	delete(f.w.blogs, id)
	return nil
}

func (f fakeBlogs) TransitionDeletion(
	_ context.Context, id uuid.UUID, from, to domain.DeletionStatus, errMsg string,
) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("blogs.TransitionDeletion"); err != nil {
		return false, err
	}
	b, ok := f.w.blogs[id]
	if !ok || b.DeletionStatus != from {
		return false, nil
	}
	b.DeletionStatus = to
	b.DeletionError = errMsg
	return true, nil
}

func (f fakeBlogs) TransitionSchedule(_ context.Context, id uuid.UUID, from, to domain.ScheduleStatus) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	b, ok := f.w.blogs[id]
	if !ok || b.ScheduleStatus != from {
		return false, nil
	}
	b.ScheduleStatus = to
	return true, nil
}

func (f fakeBlogs) ListDueScheduled(
	context.Context, domain.ScheduleStatus, time.Time, int,
) ([]*domain.Blog, error) {
	return nil, nil
}

func (f fakeBlogs) ListByDeletionStatus(context.Context, domain.DeletionStatus, int) ([]*domain.Blog, error) {
	return nil, nil
}

func (f fakeBlogs) ListStaleDeletions(context.Context, domain.DeletionStatus, time.Time, int) ([]*domain.Blog, error) {
	return nil, nil
}

func (f fakeBlogs) ListStaleSchedules(context.Context, domain.ScheduleStatus, time.Time, int) ([]*domain.Blog, error) {
	return nil, nil
}

func (f fakeBlogs) ListIDsByAuthor(_ context.Context, authorID uuid.UUID) ([]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var ids []uuid.UUID
	for id, b := range f.w.blogs {
		if b.AuthorID == authorID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f fakeBlogs) WithTx(*sql.Tx) store.BlogStore { return f }

// fakeComments implements store.CommentStore.
type fakeComments struct{ w *world }

func (f fakeComments) Create(_ context.Context, c *domain.Comment) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *c
	f.w.comments[c.ID] = &cp
	return nil
}

func (f fakeComments) GetByID(_ context.Context, id uuid.UUID) (*domain.Comment, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	c, ok := f.w.comments[id]
	if !ok {
		return nil, store.ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeComments) Update(_ context.Context, c *domain.Comment) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *c
	f.w.comments[c.ID] = &cp
	return nil
}

func (f fakeComments) Delete(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, ok := f.w.comments[id]; !ok {
		return store.ErrCommentNotFound
	}
	delete(f.w.comments, id)
	return nil
}

func (f fakeComments) ListByBlog(_ context.Context, blogID uuid.UUID, _ store.Page) ([]*domain.Comment, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.Comment
	for _, c := range f.w.comments {
		if c.BlogID == blogID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeComments) DeleteByBlog(_ context.Context, blogID uuid.UUID) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("comments.DeleteByBlog"); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range f.w.comments {
		if c.BlogID == blogID {
			delete(f.w.comments, id)
			n++
		}
	}
	return n, nil
}

func (f fakeComments) WithTx(*sql.Tx) store.CommentStore { return f }

// fakeInteractions implements store.InteractionStore.
type fakeInteractions struct{ w *world }

func (f fakeInteractions) Upsert(_ context.Context, i *domain.Interaction) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *i
	f.w.interactions[[2]uuid.UUID{i.BlogID, i.UserID}] = &cp
	return nil
}

func (f fakeInteractions) Get(_ context.Context, blogID, userID uuid.UUID) (*domain.Interaction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	i, ok := f.w.interactions[[2]uuid.UUID{blogID, userID}]
	if !ok {
		return nil, store.ErrInteractionNotFound
	}
	cp := *i
	return &cp, nil
}

func (f fakeInteractions) Delete(_ context.Context, blogID, userID uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	key := [2]uuid.UUID{blogID, userID}
	if _, ok := f.w.interactions[key]; !ok {
		return store.ErrInteractionNotFound
	}
	delete(f.w.interactions, key)
	return nil
}

func (f fakeInteractions) Counts(_ context.Context, blogID uuid.UUID) (int, int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var likes, dislikes int
	for key, i := range f.w.interactions {
		if key[0] != blogID {
			continue
		}
		if i.Type == domain.InteractionLike {
			likes++
		} else {
			dislikes++
		}
	}
	return likes, dislikes, nil
}

func (f fakeInteractions) DeleteByBlog(_ context.Context, blogID uuid.UUID) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for key := range f.w.interactions {
		if key[0] == blogID {
			delete(f.w.interactions, key)
			n++
		}
	}
	return n, nil
}

func (f fakeInteractions) WithTx(*sql.Tx) store.InteractionStore { return f }

// fakeReports implements store.ReportStore.
type fakeReports struct{ w *world }

func (f fakeReports) Create(_ context.Context, r *domain.ContentReport) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, existing := range f.w.reports {
		if existing.BlogID == r.BlogID && existing.ReporterID == r.ReporterID {
			return store.ErrDuplicateReport
		}
	}
	cp := *r
	f.w.reports[r.ID] = &cp
	return nil
}

func (f fakeReports) GetByID(_ context.Context, id uuid.UUID) (*domain.ContentReport, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	r, ok := f.w.reports[id]
	if !ok {
		return nil, store.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

func (f fakeReports) Update(_ context.Context, r *domain.ContentReport) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *r
	f.w.reports[r.ID] = &cp
	return nil
}

func (f fakeReports) List(_ context.Context, status *domain.ReportStatus, _ store.Page) ([]*domain.ContentReport, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.ContentReport
	for _, r := range f.w.reports {
		if status == nil || r.Status == *status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeReports) ResolvePending(_ context.Context, blogID, adminID uuid.UUID, at time.Time) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if err := f.w.fail("reports.ResolvePending"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range f.w.reports {
		if r.BlogID == blogID && r.Status == domain.ReportStatusPending {
			admin := adminID
			t := at
			r.Status = domain.ReportStatusResolved
			r.ResolvedBy = &admin
			r.ResolvedAt = &t
			n++
		}
	}
	return n, nil
}

func (f fakeReports) DeleteByBlog(_ context.Context, blogID uuid.UUID) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for id, r := range f.w.reports {
		if r.BlogID == blogID {
			delete(f.w.reports, id)
			n++
		}
	}
	return n, nil
}

func (f fakeReports) WithTx(*sql.Tx) store.ReportStore { return f }

// fakeTickets implements store.TicketStore.
type fakeTickets struct{ w *world }

func (f fakeTickets) Create(_ context.Context, t *domain.SupportTicket) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *t
	f.w.tickets[t.ID] = &cp
	return nil
}

func (f fakeTickets) GetByID(_ context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	t, ok := f.w.tickets[id]
	if !ok {
		return nil, store.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (f fakeTickets) Update(_ context.Context, t *domain.SupportTicket) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *t
	f.w.tickets[t.ID] = &cp
	return nil
}

func (f fakeTickets) ListByUser(_ context.Context, userID uuid.UUID, _ store.Page) ([]*domain.SupportTicket, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.SupportTicket
	for _, t := range f.w.tickets {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeTickets) List(_ context.Context, status *domain.TicketStatus, _ store.Page) ([]*domain.SupportTicket, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []*domain.SupportTicket
	for _, t := range f.w.tickets {
		if status == nil || t.Status == *status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeTickets) WithTx(*sql.Tx) store.TicketStore { return f }

// recordingEmitter keeps every emitted event. A non-nil err fails emission
// of the event types listed in failTypes, or of every event when it is empty.
type recordingEmitter struct {
	mu        sync.Mutex
	events    []*events.Event
	err       error
	failTypes map[string]bool
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil && (len(e.failTypes) == 0 || e.failTypes[event.Type]) {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// emails decodes every queued email.send payload.
func (e *recordingEmitter) emails(t *testing.T) []events.EmailRequest {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.EmailRequest
	for _, ev := range e.events {
		if ev.Type != events.TaskEmailSend {
			continue
		}
		var req events.EmailRequest
		require.NoError(t, ev.UnmarshalPayload(&req))
		out = append(out, req)
	}
	return out
}

// memCache is a map-backed BlogCache.
type memCache struct {
	mu          sync.Mutex
	blogs       map[uuid.UUID]*domain.Blog
	invalidated []uuid.UUID
}

func newMemCache() *memCache { return &memCache{blogs: map[uuid.UUID]*domain.Blog{}} }

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*domain.Blog, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blogs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *b
	return &cp, true, nil
}

func (c *memCache) Set(_ context.Context, b *domain.Blog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *b
	c.blogs[b.ID] = &cp
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blogs, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// recordingIndex wraps the SQL-backed index and records index updates.
type recordingIndex struct {
	*search.StoreIndex
	mu      sync.Mutex
	indexed []uuid.UUID
	removed []uuid.UUID
}

func (i *recordingIndex) IndexBlog(_ context.Context, b *domain.Blog) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed = append(i.indexed, b.ID)
	return nil
}

func (i *recordingIndex) RemoveBlog(_ context.Context, id uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removed = append(i.removed, id)
	return nil
}

// fakeUploader returns a fixed URL or err.
type fakeUploader struct {
	url    string
	err    error
	prefix string
}

func (u *fakeUploader) UploadImage(_ context.Context, prefix string, r io.Reader) (string, error) {
	u.prefix = prefix
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return u.url, nil
}

// harness wires every service dependency to fakes.
type harness struct {
	deps    Deps
	world   *world
	emitter *recordingEmitter
	cache   *memCache
	index   *recordingIndex
	sql     sqlmock.Sqlmock
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:                   "thisisasecretkeythatis32charslong!!",
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 1440,
		ResetTokenLifetimeMinutes:   30,
	})
	require.NoError(t, err)

	w := newWorld()
	blogs := fakeBlogs{w}
	h := &harness{
		world:   w,
		emitter: &recordingEmitter{},
		cache:   newMemCache(),
		index:   &recordingIndex{StoreIndex: search.NewStoreIndex(blogs)},
		sql:     mock,
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.deps = Deps{
		Stores: Stores{
			DB:           db,
			Users:        fakeUsers{w},
			Blogs:        blogs,
			Comments:     fakeComments{w},
			Interactions: fakeInteractions{w},
			Reports:      fakeReports{w},
			Tickets:      fakeTickets{w},
		},
		Emitter:   h.emitter,
		Cache:     h.cache,
		Index:     h.index,
		Hasher:    auth.NewBcryptHasher(4),
		Tokens:    tokens,
		PublicURL: "https://quill.example.com/",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h
}

func (h *harness) clock() clock { return func() time.Time { return h.now } }

// expectTx registers one transaction that commits.
func (h *harness) expectTx() {
	h.sql.ExpectBegin()
	h.sql.ExpectCommit()
}

func (h *harness) addUser(t *testing.T, username string, role domain.Role) *domain.User {
	t.Helper()
	u, err := domain.NewUser(username+"@example.com", username, "password123")
	require.NoError(t, err)
	hashed, err := h.deps.Hasher.Hash("password123")
	require.NoError(t, err)
	u.HashedPassword = hashed
	u.Password = ""
	u.Role = role
	require.NoError(t, h.deps.Users.Create(context.Background(), u))
	return u
}

func (h *harness) addBlog(t *testing.T, author *domain.User, status domain.PublishStatus) *domain.Blog {
	t.Helper()
	b, err := domain.NewBlog(author.ID, "A post about Go", "Some content", []string{"go"})
	require.NoError(t, err)
	b.Status = status
	if status == domain.PublishStatusPublished {
		at := h.now.Add(-time.Hour)
		b.PublishedAt = &at
	}
	require.NoError(t, h.deps.Blogs.Create(context.Background(), b))
	return b
}

func actorOf(u *domain.User) Actor { return Actor{UserID: u.ID, Role: u.Role} }
