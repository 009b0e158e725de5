/**
 * @description
 * Main entry point for the VitalChain Backend API.
 * Initializes the Fiber web server, loads configuration, wires services and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - github.com/vitalchain-project/backend/internal/config: Config loader
 * - github.com/vitalchain-project/backend/internal/db: Database connections
 *
 * @notes
 * - Connects to Postgres and Redis on startup and runs migrations.
 * - Redis only backs the login replay guard; the API keeps serving if it is down.
 * - Sets up basic middleware (CORS, Logger, Recover).
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vitalchain-project/backend/internal/api"
	"github.com/vitalchain-project/backend/internal/config"
	"github.com/vitalchain-project/backend/internal/db"
	"github.com/vitalchain-project/backend/internal/integrations/deepseek"
	"github.com/vitalchain-project/backend/internal/integrations/okx"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/services"
	"github.com/vitalchain-project/backend/internal/uploads"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Failed to migrate database: %v", err)
	}

	// Redis (login replay guard)
	var replay *services.ReplayGuard
	redisClient, err := db.ConnectRedis(context.Background(), cfg)
	if err != nil {
		logger.Error("Redis unavailable, login replay guard disabled: %v", err)
	} else {
		defer redisClient.Close()
		replay = services.NewReplayGuard(redisClient, 2*cfg.Auth.LoginWindow)
	}

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	// 4. Initialize Services
	sessions, err := services.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		logger.Fatal("Failed to create session issuer: %v", err)
	}
	users := services.NewGormUserStore(pgDB)
	verifier := services.NewSignatureVerifier(okx.NewClient(cfg), cfg.Auth.LoginWindow, metrics)
	authService := services.NewAuthService(verifier, sessions, users, replay)
	analysisService := services.NewAnalysisService(deepseek.NewClient(cfg), users, metrics)
	taskService := services.NewTaskService(pgDB)

	uploadManager, err := uploads.NewManager(cfg.Uploads.Dir)
	if err != nil {
		logger.Fatal("Failed to prepare upload dir: %v", err)
	}
	uploadManager.OnCleanupFailure = metrics.CleanupFailed

	// 5. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:   "VitalChain Health API",
		BodyLimit: cfg.Server.MaxRequestSize,
	})

	// 6. Global Middleware
	app.Use(recover.New())     // Panic recovery
	app.Use(fiberlogger.New()) // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, OPTIONS",
	}))

	// 7. Routes
	api.SetupRoutes(app, api.Dependencies{
		Auth:          authService,
		Sessions:      sessions,
		Users:         users,
		Analysis:      analysisService,
		Tasks:         taskService,
		Uploads:       uploadManager,
		MaxUploadSize: cfg.Uploads.MaxSize,
		Metrics:       registry,
	})

	// 8. Start Server
	go func() {
		logger.Info("Starting VitalChain Backend on port %s (%s)", cfg.Server.Port, cfg.Server.Env)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("API exited.")
}
