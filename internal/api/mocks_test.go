package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/require"
)

// The mocks embed the interface they implement so a test only supplies the
// functions it expects to be called; anything else panics.

type mockUserService struct {
	UserService
	registerFn      func(ctx context.Context, email, username, password string) (*domain.User, error)
	authenticateFn  func(ctx context.Context, email, password string) (*domain.User, error)
	getProfileFn    func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	updateProfileFn func(ctx context.Context, id uuid.UUID, upd service.ProfileUpdate) (*domain.User, error)
	requestResetFn  func(ctx context.Context, email string) error
	resetFn         func(ctx context.Context, token, password string) error
	deleteAccountFn func(ctx context.Context, id uuid.UUID) error
	setStatusFn     func(ctx context.Context, actor service.Actor, id uuid.UUID, s domain.UserStatus) (*domain.User, error)
}

func (m *mockUserService) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	return m.registerFn(ctx, email, username, password)
}

func (m *mockUserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	return m.authenticateFn(ctx, email, password)
}

func (m *mockUserService) GetProfile(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getProfileFn(ctx, id)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, id uuid.UUID, upd service.ProfileUpdate) (*domain.User, error) {
	return m.updateProfileFn(ctx, id, upd)
}

func (m *mockUserService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.requestResetFn(ctx, email)
}

func (m *mockUserService) ResetPassword(ctx context.Context, token, password string) error {
	return m.resetFn(ctx, token, password)
}

func (m *mockUserService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return m.deleteAccountFn(ctx, id)
}

func (m *mockUserService) SetStatus(
	ctx context.Context,
	actor service.Actor,
	id uuid.UUID,
	s domain.UserStatus,
) (*domain.User, error) {
	return m.setStatusFn(ctx, actor, id, s)
}

type mockBlogService struct {
	BlogService
	createFn func(ctx context.Context, actor service.Actor, in service.BlogInput) (*domain.Blog, error)
	getFn    func(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.Blog, error)
	listFn   func(ctx context.Context, filter service.BlogListFilter) ([]*domain.Blog, error)
	deleteFn func(ctx context.Context, actor service.Actor, id uuid.UUID) error
	searchFn func(ctx context.Context, q string, page store.Page) ([]*domain.Blog, error)
	uploadFn func(ctx context.Context, actor service.Actor, id uuid.UUID, r io.Reader) (*domain.Blog, error)
}

func (m *mockBlogService) Create(ctx context.Context, actor service.Actor, in service.BlogInput) (*domain.Blog, error) {
	return m.createFn(ctx, actor, in)
}

func (m *mockBlogService) Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.Blog, error) {
	return m.getFn(ctx, actor, id)
}

func (m *mockBlogService) List(ctx context.Context, filter service.BlogListFilter) ([]*domain.Blog, error) {
	return m.listFn(ctx, filter)
}

func (m *mockBlogService) Delete(ctx context.Context, actor service.Actor, id uuid.UUID) error {
	return m.deleteFn(ctx, actor, id)
}

func (m *mockBlogService) Search(ctx context.Context, q string, page store.Page) ([]*domain.Blog, error) {
	return m.searchFn(ctx, q, page)
}

func (m *mockBlogService) UploadImage(
	ctx context.Context,
	actor service.Actor,
	id uuid.UUID,
	r io.Reader,
) (*domain.Blog, error) {
	return m.uploadFn(ctx, actor, id, r)
}

type mockCommentService struct {
	CommentService
	createFn func(ctx context.Context, actor service.Actor, blogID uuid.UUID, content string) (*domain.Comment, error)
	deleteFn func(ctx context.Context, actor service.Actor, id uuid.UUID) error
}

func (m *mockCommentService) Create(
	ctx context.Context,
	actor service.Actor,
	blogID uuid.UUID,
	content string,
) (*domain.Comment, error) {
	return m.createFn(ctx, actor, blogID, content)
}

func (m *mockCommentService) Delete(ctx context.Context, actor service.Actor, id uuid.UUID) error {
	return m.deleteFn(ctx, actor, id)
}

type mockInteractionService struct {
	InteractionService
	putFn     func(ctx context.Context, actor service.Actor, blogID uuid.UUID, kind domain.InteractionType) (*domain.InteractionSummary, error)
	summaryFn func(ctx context.Context, actor service.Actor, blogID uuid.UUID) (*domain.InteractionSummary, error)
}

func (m *mockInteractionService) Put(
	ctx context.Context,
	actor service.Actor,
	blogID uuid.UUID,
	kind domain.InteractionType,
) (*domain.InteractionSummary, error) {
	return m.putFn(ctx, actor, blogID, kind)
}

func (m *mockInteractionService) Summary(
	ctx context.Context,
	actor service.Actor,
	blogID uuid.UUID,
) (*domain.InteractionSummary, error) {
	return m.summaryFn(ctx, actor, blogID)
}

type mockModerationService struct {
	ModerationService
	reportFn      func(ctx context.Context, actor service.Actor, blogID uuid.UUID, reason domain.ReportReason, details string) (*domain.ContentReport, error)
	listReportsFn func(ctx context.Context, actor service.Actor, status *domain.ReportStatus, page store.Page) ([]*domain.ContentReport, error)
	unpublishFn   func(ctx context.Context, actor service.Actor, blogID uuid.UUID, reason string) (*domain.Blog, error)
}

func (m *mockModerationService) Report(
	ctx context.Context,
	actor service.Actor,
	blogID uuid.UUID,
	reason domain.ReportReason,
	details string,
) (*domain.ContentReport, error) {
	return m.reportFn(ctx, actor, blogID, reason, details)
}

func (m *mockModerationService) ListReports(
	ctx context.Context,
	actor service.Actor,
	status *domain.ReportStatus,
	page store.Page,
) ([]*domain.ContentReport, error) {
	return m.listReportsFn(ctx, actor, status, page)
}

func (m *mockModerationService) Unpublish(
	ctx context.Context,
	actor service.Actor,
	blogID uuid.UUID,
	reason string,
) (*domain.Blog, error) {
	return m.unpublishFn(ctx, actor, blogID, reason)
}

type mockTicketService struct {
	TicketService
	createFn func(ctx context.Context, actor service.Actor, subject, description string, c domain.TicketCategory) (*domain.SupportTicket, error)
	getFn    func(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.SupportTicket, error)
	updateFn func(ctx context.Context, actor service.Actor, id uuid.UUID, upd service.TicketUpdate) (*domain.SupportTicket, error)
}

func (m *mockTicketService) Create(
	ctx context.Context,
	actor service.Actor,
	subject, description string,
	c domain.TicketCategory,
) (*domain.SupportTicket, error) {
	return m.createFn(ctx, actor, subject, description, c)
}

func (m *mockTicketService) Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*domain.SupportTicket, error) {
	return m.getFn(ctx, actor, id)
}

func (m *mockTicketService) Update(
	ctx context.Context,
	actor service.Actor,
	id uuid.UUID,
	upd service.TicketUpdate,
) (*domain.SupportTicket, error) {
	return m.updateFn(ctx, actor, id, upd)
}

// mockJWTService implements auth.JWTService with fixed token strings.
type mockJWTService struct {
	auth.JWTService
	validateRefreshFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *mockJWTService) GenerateToken(_ context.Context, userID uuid.UUID, role domain.Role) (string, error) {
	return "access-" + string(role) + "-" + userID.String(), nil
}

func (m *mockJWTService) GenerateRefreshToken(_ context.Context, userID uuid.UUID) (string, error) {
	return "refresh-" + userID.String(), nil
}

func (m *mockJWTService) ValidateRefreshToken(ctx context.Context, token string) (*auth.Claims, error) {
	return m.validateRefreshFn(ctx, token)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRequest builds a request with an optional JSON body, chi URL params
// and, when actor is not anonymous, auth claims.
func newRequest(t *testing.T, method, target string, body interface{}, actor service.Actor, params map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx := req.Context()
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	if !actor.IsAnonymous() {
		ctx = shared.WithClaims(ctx, &auth.Claims{UserID: actor.UserID, Role: actor.Role})
	}
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func userActor() service.Actor {
	return service.Actor{UserID: uuid.New(), Role: domain.RoleUser}
}

func adminActor() service.Actor {
	return service.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}
}
