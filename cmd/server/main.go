package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/auth"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/config"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/handler"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/interrupt"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/middleware"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/pipeline"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/service"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
	ws "github.com/kentin0-fiz0l/FluxStudio-sub015/internal/websocket"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	aiClient := client.NewAIClient(&cfg.AI)
	analysisClient := client.NewAnalysisClient(&cfg.Analysis)
	syncClient := client.NewSyncClient(&cfg.Sync)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Session store and interrupt registry shared between the HTTP
	// surface and the pipeline workers
	sessionStore := store.NewRedisStore(redisClient)
	registry := interrupt.NewRegistry()
	syncConnector := pipeline.NewSyncConnector(syncClient)

	// Initialize services
	generationService := service.NewGenerationService(sessionStore, registry, asynqClient, aiClient, syncConnector)

	var storageClient client.StorageClient
	if r2Client != nil {
		storageClient = r2Client
	}
	exportService := service.NewExportService(sessionStore, syncClient, storageClient)

	// Initialize handlers
	generationHandler := handler.NewGenerationHandler(generationService, validate)
	exportHandler := handler.NewExportHandler(exportService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    5 * 1024 * 1024, // 5MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ai":       aiClient.IsConfigured(),
				"analysis": analysisClient.IsConfigured(),
				"sync":     syncClient.IsConfigured(),
				"r2":       r2Client != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Generation routes
	generation := api.Group("/generation")
	generation.Post("/start", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generationHandler.Start)
	generation.Get("/:sessionId", generationHandler.Get)
	generation.Post("/:sessionId/approve", generationHandler.Approve)
	generation.Post("/:sessionId/interrupt", generationHandler.Interrupt)
	generation.Post("/:sessionId/refine", rateLimiter.RefineLimit(cfg.RateLimit.RefinePerHour), generationHandler.Refine)

	// Export routes
	export := api.Group("/export", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour))
	export.Post("/formation", exportHandler.Formation)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/generation/:sessionId", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionId")
		hub.HandleConnection(c, sessionID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, sessionStore, registry, analysisClient, aiClient, syncConnector, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	sessionStore store.SessionStore,
	registry *interrupt.Registry,
	analysisClient *client.AnalysisClient,
	aiClient *client.AIClient,
	syncConnector pipeline.SyncConnector,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"generation": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	pipe := pipeline.New(sessionStore, registry, analysisClient, aiClient, syncConnector, hub, pipeline.Options{
		ApprovalPollInterval:  time.Duration(cfg.Generation.ApprovalPollSeconds) * time.Second,
		ApprovalTimeout:       time.Duration(cfg.Generation.ApprovalTimeoutSeconds) * time.Second,
		SyncGrace:             time.Duration(cfg.Generation.SyncGraceMs) * time.Millisecond,
		SyncChunkSize:         cfg.Generation.SyncChunkSize,
		DefaultSongDurationMs: cfg.Generation.DefaultSongDurationMs,
		FallbackSectionMs:     cfg.Generation.FallbackSectionMs,
	})
	generationWorker := worker.NewGenerationWorker(pipe)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGeneration, generationWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
