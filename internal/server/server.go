// Package server contains HTTP and WebSocket handlers for the forum API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	_ "codezen/docs" // swagger docs
	"codezen/internal/bootstrap"
	"codezen/internal/config"
	"codezen/internal/middleware"
	"codezen/internal/models"
	"codezen/internal/notifications"
	"codezen/internal/repository"
	"codezen/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

const globalRequestsPerMinute = 100

// Server owns the forum's services and the Fiber app serving them.
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	// mu guards app and stop, which Start sets while Shutdown may run.
	mu   sync.Mutex
	app  *fiber.App
	stop context.CancelFunc

	postRepo       repository.PostRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	broadcaster    *notifications.Broadcaster
	postService    *service.PostService
	commentService *service.CommentService
	uploadService  *service.UploadService
}

// NewServer connects the store and Redis named by cfg and builds a Server on them.
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{SeedDemo: cfg.SeedDemo})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt)
}

// NewServerWithDeps creates a Server using an already-initialized runtime.
// Use this in tests or when the caller manages the store and Redis itself.
func NewServerWithDeps(cfg *config.Config, rt *bootstrap.Runtime) (*Server, error) {
	if cfg == nil || rt == nil || rt.PostRepo == nil {
		return nil, errors.New("server requires a config and a runtime with a post store")
	}

	middleware.InitMiddleware(cfg)

	s := &Server{
		config:         cfg,
		runtime:        rt,
		redis:          rt.Redis,
		promMiddleware: middleware.InitMetrics("codezen-api"),
		postRepo:       rt.PostRepo,
		hub:            notifications.NewHub(),
		uploadService:  service.NewUploadService(cfg),
	}
	if rt.Redis != nil {
		s.notifier = notifications.NewNotifier(rt.Redis)
	}
	s.buildServices()
	return s, nil
}

func (s *Server) buildServices() {
	s.broadcaster = notifications.NewBroadcaster(s.hub, s.notifier)
	ttl := time.Duration(s.config.PostCacheTTLSeconds) * time.Second
	s.postService = service.NewPostService(s.postRepo, s.broadcaster, ttl)
	s.commentService = service.NewCommentService(s.postRepo, s.broadcaster)
}

// StartWiring subscribes the hub to Redis so events from every instance reach
// local clients. If the subscription cannot be established the server falls
// back to delivering events to its own clients only.
func (s *Server) StartWiring(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
		log.Printf("failed to start %s wiring, using local delivery: %v", s.hub.Name(), err)
		s.notifier = nil
		s.buildServices()
	}
}

// NewApp builds the Fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Codezen Forum API",
		BodyLimit: int(s.uploadService.MaxUploadSizeBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware installs the middleware chain. Order matters.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	// Needs the request id and the span from the two above.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers. Uploaded images are embedded by the frontend origin.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS ahead of the limiter so 429s still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400, // 24 hours
	}))

	// Per-instance flood guard; the Redis write limits on the post routes are shared.
	app.Use(limiter.New(limiter.Config{
		Max:        globalRequestsPerMinute,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  "RATE_LIMITED",
			})
		},
	}))
}

// SetupRoutes mounts health, metrics, uploads, docs and the /api routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Static(service.UploadURLPrefix, s.uploadService.Dir(), fiber.Static{
		MaxAge: 86400,
	})

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Get("/:id", s.GetPost)
	posts.Post("/", middleware.OptionalAuthor, middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:id/like", middleware.RateLimit(
		s.redis, 60, time.Minute, "like_post"), s.LikePost)

	commentLimit := middleware.RateLimit(s.redis, 30, time.Minute, "create_comment")
	posts.Post("/:id/comment", middleware.OptionalAuthor, commentLimit, s.CreateComment)
	posts.Post("/:id/comments", middleware.OptionalAuthor, commentLimit, s.CreateComment)

	api.Get("/ws", s.WebsocketUpgrade, s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it the forum runs single-instance, so it only degrades the report.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if err := s.runtime.PingStore(ctx); err != nil {
		storeStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case storeStatus == "unhealthy" || redisStatus == "unhealthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus == "unavailable":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store":     fiber.Map{"driver": s.runtime.Driver, "status": storeStatus},
			"redis":     redisStatus,
			"websocket": fiber.Map{"clients": s.hub.Count()},
		},
		"time": time.Now(),
	})
}

// Start subscribes to cross-instance events and serves until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.StartWiring(ctx)
	app := s.NewApp()

	s.mu.Lock()
	s.app, s.stop = app, cancel
	s.mu.Unlock()

	log.Printf("Server starting on port %s...", s.config.Port)
	if err := app.Listen(":" + s.config.Port); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops the Redis subscriber, drains HTTP, closes every websocket
// and releases the store and Redis connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	app, stop := s.app, s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if app != nil {
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down %s: %v", s.hub.Name(), err)
	}

	if err := s.runtime.Close(ctx); err != nil {
		log.Printf("error closing runtime: %v", err)
	}

	log.Println("Server shutdown complete")
	return nil
}
