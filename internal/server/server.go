// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/bootstrap"
	"inkwell/internal/config"
	"inkwell/internal/featureflags"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/observability"
	"inkwell/internal/repository"
	"inkwell/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository

	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher
	mailer     notifications.Mailer

	featureFlags *featureflags.Manager

	postService       *service.PostService
	commentService    *service.CommentService
	engagementService *service.EngagementService
	aggregator        *service.Aggregator
	feedService       *service.FeedService
	followService     *service.FollowService
	categoryService   *service.CategoryService
	userService       *service.UserService

	hashCost int
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithMailer replaces the mailer chosen from the SMTP configuration.
func WithMailer(m notifications.Mailer) Option {
	return func(s *Server) { s.mailer = m }
}

// WithPasswordHashCost overrides the bcrypt cost used at registration.
func WithPasswordHashCost(cost int) Option {
	return func(s *Server) { s.hashCost = cost }
}

// NewServer connects the runtime dependencies (seeding the catalog when
// configured) and builds a server on top of them.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedCatalog: cfg.SeedCatalog})
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		middleware.Logger.Warn("redis unavailable; realtime events, websocket tickets and logout revocation are disabled")
	}
	return NewServerWithDeps(cfg, db, redisClient, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// performs explicit seeding. redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires config and database")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("inkwell-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		hashCost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	observability.SetLogger(middleware.Logger)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)
	followRepo := repository.NewFollowRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	tagRepo := repository.NewTagRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	s.userRepo = userRepo

	if s.mailer == nil {
		s.mailer = notifications.NewMailer(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, middleware.Logger)
	}

	s.dispatcher = notifications.NewDispatcher(cfg.NotifyQueueSize, cfg.NotifyWorkers)
	s.dispatcher.Start()

	var events notifications.EventPublisher
	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		s.hub = notifications.NewHub()
		events = s.notifier
	}
	triggers := notifications.NewTriggers(notifications.TriggersConfig{
		Dispatcher: s.dispatcher,
		Users:      userRepo,
		Mailer:     s.mailer,
		Events:     events,
		Flags:      s.featureFlags,
		MailFrom:   cfg.MailFrom,
	})

	s.postService = service.NewPostService(postRepo, engagementRepo, triggers, cfg.PublicBaseURL)
	s.commentService = service.NewCommentService(commentRepo, postRepo)
	s.engagementService = service.NewEngagementService(postRepo, engagementRepo, triggers)
	s.aggregator = service.NewAggregator(postRepo, engagementRepo, s.featureFlags)
	s.feedService = service.NewFeedService(postRepo, categoryRepo)
	s.followService = service.NewFollowService(followRepo, userRepo, categoryRepo)
	s.userService = service.NewUserService(userRepo, profileRepo, followRepo, postRepo, categoryRepo).WithHashCost(s.hashCost)
	s.categoryService = service.NewCategoryService(categoryRepo, tagRepo, s.userService.IsAdmin)

	return s, nil
}

// App builds the fiber application with middleware and routes mounted.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Inkwell API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// rateLimitBypassed turns both limiters off for development, test and load runs.
func (s *Server) rateLimitBypassed() bool {
	switch s.config.Env {
	case "development", "test", "stress":
		return true
	}
	return false
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
		app.Use(s.promMiddleware.Middleware)
	}
	app.Use(middleware.MetricsMiddleware())

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so that 429 responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.rateLimitBypassed()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	api := app.Group("/api")
	api.Get("/", s.HealthCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Inkwell Metrics Dashboard",
	}))

	quotas := middleware.NewRateLimiter(s.redis, s.rateLimitBypassed())
	authLimit := quotas.Handler(middleware.AuthLimit)
	engagementLimit := quotas.Handler(middleware.EngagementLimit)
	writingLimit := quotas.Handler(middleware.WritingLimit)

	authed := s.AuthRequired()

	auth := api.Group("/auth")
	auth.Post("/register", authLimit, s.Register)
	auth.Post("/login", authLimit, s.Login)
	auth.Post("/logout", authed, s.Logout)

	// Posts: static segments are registered before /:id.
	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", authed, writingLimit, s.CreatePost)
	posts.Get("/top", s.GetTopPosts)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", authed, s.UpdatePost)
	posts.Patch("/:id", authed, s.UpdatePost)
	posts.Delete("/:id", authed, s.DeletePost)
	posts.Post("/:id/publish", authed, s.PublishPost)
	posts.Post("/:id/share", authed, s.SharePost)
	posts.Post("/:id/like", authed, engagementLimit, s.ToggleLike)
	posts.Delete("/:id/like", authed, engagementLimit, s.UnlikePost)
	posts.Post("/:id/rate", authed, engagementLimit, s.RatePost)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", authed, writingLimit, s.CreateComment)

	comments := api.Group("/comments")
	comments.Put("/:id", authed, s.UpdateComment)
	comments.Delete("/:id", authed, s.DeleteComment)

	categories := api.Group("/categories")
	categories.Get("/", s.GetCategories)
	categories.Post("/", authed, s.CreateCategory)
	categories.Get("/:name/posts", s.GetCategoryPosts)
	categories.Post("/:id/subscribe", authed, s.SubscribeCategory)
	categories.Delete("/:id/subscribe", authed, s.UnsubscribeCategory)
	api.Get("/tags", s.GetTags)

	api.Get("/explore", s.GetExplore)
	api.Get("/feed", authed, s.GetFeed)
	api.Get("/drafts", authed, s.GetDrafts)

	api.Get("/profile", authed, s.GetMyProfile)
	api.Put("/profile", authed, s.UpdateMyProfile)

	users := api.Group("/users")
	users.Get("/:id/profile", s.GetUserProfile)
	users.Post("/:id/follow", authed, s.FollowUser)
	users.Delete("/:id/follow", authed, s.UnfollowUser)

	api.Get("/ws/ticket", authed, s.IssueWSTicket)
	api.Post("/ws/ticket", authed, s.IssueWSTicket)
	api.Get("/ws", authed, s.requireWebSocketUpgrade, s.WebsocketHandler())

	admin := api.Group("/admin")
	admin.Get("/feature-flags", authed, s.AdminRequired(), s.GetFeatureFlags)
}

// HealthCheck is a legacy/simple alias for ReadinessCheck
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	// Redis is optional: without it the cache and realtime stream are off.
	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database":            dbStatus,
			"redis":               redisStatus,
			"notification_queue":  s.pendingNotifications(),
			"websocket_clients":   s.connectedClients(),
		},
		"time": time.Now(),
	})
}

func (s *Server) pendingNotifications() int {
	if s.dispatcher == nil {
		return 0
	}
	return s.dispatcher.Pending()
}

func (s *Server) connectedClients() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ConnectionCount()
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(uint)

		admin, err := s.userService.IsAdmin(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewPermissionError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware. WebSocket routes
// authenticate with a single-use ticket; everything else with a bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws") && c.Path() != "/api/ws/ticket"

		if ticket := c.Query("ticket"); ticket != "" && s.redis != nil {
			if userID, ok := s.consumeWSTicket(c.UserContext(), ticket); ok {
				s.setUser(c, userID)
				return c.Next()
			}
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		tokenString := middleware.BearerToken(c)
		// Tokens in URLs leak into logs; WS clients must use a ticket.
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := middleware.ParseToken(s.config, tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if s.isRevoked(c.UserContext(), claims.JTI) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		c.Locals("claims", claims)
		s.setUser(c, claims.UserID)
		return c.Next()
	}
}

func (s *Server) setUser(c *fiber.Ctx, userID uint) {
	middleware.SetUser(c, userID)
}

func (s *Server) isRevoked(ctx context.Context, jti string) bool {
	if jti == "" || s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, revokedTokenKey(jti)).Result()
	if err != nil {
		middleware.RedisErrors.WithLabelValues("token_blacklist").Inc()
		return false
	}
	return n > 0
}

func revokedTokenKey(jti string) string {
	return "blacklist:" + jti
}

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

// consumeWSTicket atomically reads and deletes a websocket ticket.
func (s *Server) consumeWSTicket(ctx context.Context, ticket string) (uint, bool) {
	raw, err := s.redis.GetDel(ctx, wsTicketKey(ticket)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("ws_ticket").Inc()
		}
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// optionalUserID attempts to extract userID from Authorization header but does not enforce it.
func (s *Server) optionalUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("userID").(uint); ok {
		return id
	}
	tokenString := middleware.BearerToken(c)
	if tokenString == "" {
		return 0
	}
	claims, err := middleware.ParseToken(s.config, tokenString)
	if err != nil || s.isRevoked(c.UserContext(), claims.JTI) {
		return 0
	}
	return claims.UserID
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier != nil && s.hub != nil {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start notification wiring", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server. Queued notifications are
// drained before the database and Redis connections close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down notification hub", slog.String("error", err.Error()))
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			middleware.Logger.Warn("notification queue not fully drained", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
