package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/quill-api/internal/api"
	apiMiddleware "github.com/phrazzld/quill-api/internal/api/middleware"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/platform/metrics"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/service/auth"
)

type routerDeps struct {
	logger   *slog.Logger
	config   *config.Config
	jwt      auth.JWTService
	attempts rediscache.AttemptCounter
	metrics  *metrics.Metrics

	users        api.UserService
	blogs        api.BlogService
	comments     api.CommentService
	interactions api.InteractionService
	moderation   api.ModerationService
	tickets      api.TicketService
}

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	return newRouter(routerDeps{
		logger:       app.logger,
		config:       app.config,
		jwt:          app.jwtService,
		attempts:     app.attempts,
		metrics:      app.metrics,
		users:        app.users,
		blogs:        app.blogs,
		comments:     app.comments,
		interactions: app.interactions,
		moderation:   app.moderation,
		tickets:      app.tickets,
	})
}

// newRouter builds the chi router. It depends only on the handler-facing
// interfaces so tests can mount it with fakes.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(d.logger))
	r.Use(apiMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.CORS(d.config.Server.AllowedOrigins))
	r.Use(d.metrics.Middleware)
	r.Use(apiMiddleware.NewRateLimiter(d.config.RateLimit.RequestsPerSecond, d.config.RateLimit.Burst).Handler)

	authHandler := api.NewAuthHandler(d.users, d.jwt, d.attempts, d.config.Auth, d.logger)
	userHandler := api.NewUserHandler(d.users, d.blogs, d.logger)
	blogHandler := api.NewBlogHandler(d.blogs, d.config.Storage.MaxUploadBytes, d.logger)
	commentHandler := api.NewCommentHandler(d.comments, d.logger)
	interactionHandler := api.NewInteractionHandler(d.interactions, d.logger)
	moderationHandler := api.NewModerationHandler(d.moderation, d.logger)
	ticketHandler := api.NewTicketHandler(d.tickets, d.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(d.jwt, d.config.Auth.CookieName, d.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.With(apiMiddleware.AttemptLimiter(d.attempts, api.AttemptLogin)).
				Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
			r.With(apiMiddleware.AttemptLimiter(d.attempts, api.AttemptForgotPassword)).
				Post("/forgot-password", authHandler.ForgotPassword)
			r.With(apiMiddleware.AttemptLimiter(d.attempts, api.AttemptResetPassword)).
				Post("/reset-password", authHandler.ResetPassword)
		})

		// Public reads; a valid token only widens what is visible.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.OptionalAuth)
			r.Get("/blogs", blogHandler.ListBlogs)
			r.Get("/blogs/search", blogHandler.SearchBlogs)
			r.Get("/blogs/{id}", blogHandler.GetBlog)
			r.Get("/blogs/{id}/comments", commentHandler.ListComments)
			r.Get("/blogs/{id}/interactions", interactionHandler.GetSummary)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/users/me", userHandler.GetMe)
			r.Patch("/users/me", userHandler.UpdateMe)
			r.Delete("/users/me", userHandler.DeleteMe)
			r.Put("/users/me/password", userHandler.ChangePassword)
			r.Get("/users/me/blogs", userHandler.MyBlogs)

			r.Post("/blogs", blogHandler.CreateBlog)
			r.Put("/blogs/{id}", blogHandler.UpdateBlog)
			r.Delete("/blogs/{id}", blogHandler.DeleteBlog)
			r.Post("/blogs/{id}/publish", blogHandler.PublishBlog)
			r.Post("/blogs/{id}/image", blogHandler.UploadImage)

			r.Post("/blogs/{id}/comments", commentHandler.CreateComment)
			r.Put("/comments/{id}", commentHandler.UpdateComment)
			r.Delete("/comments/{id}", commentHandler.DeleteComment)

			r.Put("/blogs/{id}/interaction", interactionHandler.PutInteraction)
			r.Delete("/blogs/{id}/interaction", interactionHandler.DeleteInteraction)

			r.Post("/blogs/{id}/reports", moderationHandler.ReportBlog)

			r.Post("/tickets", ticketHandler.CreateTicket)
			r.Get("/tickets", ticketHandler.ListMyTickets)
			r.Get("/tickets/{id}", ticketHandler.GetTicket)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(authMiddleware.RequireAdmin)

			r.Get("/users", userHandler.ListUsers)
			r.Get("/users/{id}", userHandler.GetUser)
			r.Patch("/users/{id}/role", userHandler.SetRole)
			r.Patch("/users/{id}/status", userHandler.SetStatus)
			r.Delete("/users/{id}", userHandler.DeleteUser)

			r.Get("/reports", moderationHandler.ListReports)
			r.Patch("/reports/{id}", moderationHandler.ResolveReport)
			r.Get("/blogs/review", moderationHandler.ReviewQueue)
			r.Post("/blogs/{id}/unpublish", moderationHandler.UnpublishBlog)
			r.Post("/blogs/{id}/republish", moderationHandler.RepublishBlog)

			r.Get("/tickets", ticketHandler.ListTickets)
			r.Patch("/tickets/{id}", ticketHandler.UpdateTicket)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			d.logger.Error("Failed to write health check response", "error", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	return r
}
