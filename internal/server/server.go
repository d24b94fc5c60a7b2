// Package server contains the HTTP handlers for the request lifecycle API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	_ "helpmatch/docs" // swagger docs
	"helpmatch/internal/cache"
	"helpmatch/internal/config"
	"helpmatch/internal/featureflags"
	"helpmatch/internal/middleware"
	"helpmatch/internal/models"
	"helpmatch/internal/notifications"
	"helpmatch/internal/reaper"
	"helpmatch/internal/repository"
	"helpmatch/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	tokens         middleware.TokenConfig
	featureFlags   *featureflags.Manager

	userRepo repository.UserRepository

	fanOut    *notifications.FanOut
	notifier  *notifications.Notifier
	kafkaSink *notifications.KafkaSink
	reaper    *reaper.Reaper

	userService         *service.UserService
	requestService      *service.RequestService
	lifecycleService    *service.LifecycleService
	proofService        *service.ProofService
	ratingService       *service.RatingService
	notificationService *service.NotificationService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, pub/sub and rate limiting are then skipped.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	store := cache.NewStore(redisClient)

	requestRepo := repository.NewRequestRepository(db, store, cfg.RequestCacheTTL())
	userRepo := repository.NewUserRepository(db, store, cfg.RequestCacheTTL())
	photoRepo := repository.NewPhotoRepository(db)
	ratingRepo := repository.NewRatingRepository(db, store)
	notificationRepo := repository.NewNotificationRepository(db)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("helpmatch-api"),
		tokens: middleware.TokenConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),
		userRepo:     userRepo,
	}

	var sinks []notifications.Sink
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		sinks = append(sinks, server.notifier)
	}
	if cfg.KafkaEnabled() {
		sink, err := notifications.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		server.kafkaSink = sink
		sinks = append(sinks, sink)
	}
	server.fanOut = notifications.NewFanOut(notificationRepo, notifications.FanOutConfig{
		Workers:   cfg.FanOutWorkers,
		QueueSize: cfg.FanOutQueueSize,
	}, sinks...)

	server.userService = service.NewUserService(userRepo)
	server.requestService = service.NewRequestService(requestRepo, userRepo)
	server.lifecycleService = service.NewLifecycleService(requestRepo, userRepo, photoRepo, server.featureFlags, server.fanOut)
	server.proofService = service.NewProofService(requestRepo, photoRepo, server.fanOut)
	server.ratingService = service.NewRatingService(requestRepo, ratingRepo, server.fanOut)
	server.notificationService = service.NewNotificationService(notificationRepo)
	server.reaper = reaper.New(requestRepo, server.lifecycleService, server.featureFlags, cfg.ClaimTTL(), cfg.ReaperInterval())

	server.app = server.newApp()
	return server, nil
}

// App returns the configured Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "HelpMatch API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			return respondError(c, err)
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if s.config.RateLimitEnabled {
		app.Use(limiter.New(limiter.Config{
			Max:        120,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
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
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Registration is the only unauthenticated write.
	api.Post("/users", middleware.RateLimit(
		s.redis, s.config.RateLimitEnabled, 5, 10*time.Minute, "signup", middleware.FailOpen), s.CreateUser)

	protected := api.Group("", middleware.AuthRequired(s.tokens))

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Delete("/me", s.DeactivateMe)
	users.Get("/:id/ratings", s.GetUserRatings)
	users.Get("/:id", s.GetUserProfile)

	requests := protected.Group("/requests")
	requests.Post("/", s.CreateRequest)
	requests.Get("/", s.ListRequests)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	requests.Post("/:id/claim", middleware.RateLimit(
		s.redis, s.config.RateLimitEnabled, 20, time.Minute, "claim", middleware.FailOpen), s.ClaimRequest)
	requests.Post("/:id/status", s.AdvanceStatus)
	requests.Post("/:id/photos", s.SubmitPhoto)
	requests.Get("/:id/photos", s.ListPhotos)
	requests.Post("/:id/ratings", s.SubmitRating)
	requests.Get("/:id/ratings", s.ListRatings)
	requests.Get("/:id", s.GetRequest)

	protected.Post("/photos/:id/review", s.ReviewPhoto)

	notifs := protected.Group("/notifications")
	notifs.Get("/", s.ListNotifications)
	notifs.Get("/unread-count", s.GetUnreadCount)
	notifs.Post("/read-all", s.MarkAllNotificationsRead)
	notifs.Post("/:id/read", s.MarkNotificationRead)

	protected.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: a
// missing client is reported but does not fail readiness.
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

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start runs the background reaper and listens on the configured port.
func (s *Server) Start() error {
	s.reaper.Start()
	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		log.Printf("error shutting down HTTP server: %v", err)
	}

	s.reaper.Stop()

	// Pending notifications are delivered before the stores go away.
	if err := s.fanOut.Close(ctx); err != nil {
		log.Printf("notification fan-out did not drain: %v", err)
	}
	if s.kafkaSink != nil {
		if left := s.kafkaSink.Close(5000); left > 0 {
			log.Printf("kafka sink closed with %d undelivered messages", left)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
