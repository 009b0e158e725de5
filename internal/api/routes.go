/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/prometheus/client_golang/prometheus/promhttp
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitalchain-project/backend/internal/api/handlers"
	"github.com/vitalchain-project/backend/internal/api/middleware"
	"github.com/vitalchain-project/backend/internal/services"
	"github.com/vitalchain-project/backend/internal/uploads"
)

// Dependencies are the constructed services the routes need.
type Dependencies struct {
	Auth          *services.AuthService
	Sessions      *services.SessionIssuer
	Users         services.UserStore
	Analysis      *services.AnalysisService
	Tasks         *services.TaskService
	Uploads       *uploads.Manager
	MaxUploadSize int64
	Metrics       prometheus.Gatherer
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	// 1. Initialize Handlers
	authHandler := handlers.NewAuthHandler(deps.Auth)
	userHandler := handlers.NewUserHandler(deps.Users)
	analysisHandler := handlers.NewAnalysisHandler(deps.Analysis, deps.Users, deps.Uploads, deps.MaxUploadSize)
	taskHandler := handlers.NewTaskHandler(deps.Tasks)

	protected := middleware.Protected(deps.Sessions, deps.Users)

	// 2. Operational Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// 3. Define Routes
	api := app.Group("/api")

	// Public Routes
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api.Post("/login", authHandler.Login)
	api.Get("/login/message", authHandler.GetLoginMessage)

	// User Routes (Protected)
	api.Get("/user", protected, userHandler.GetUser)

	// Analysis Routes (Protected)
	api.Post("/analyze", protected, analysisHandler.AnalyzeHealthData)
	api.Post("/image-analysis", protected, analysisHandler.AnalyzeImage)
	api.Post("/upload", protected, analysisHandler.Upload)
	api.Post("/health-data/upload", protected, analysisHandler.LegacyUpload)
	api.Get("/analysis/history", protected, analysisHandler.GetAnalysisHistory)
	api.Get("/image-analysis/history", protected, analysisHandler.GetImageAnalysisHistory)

	// Task Routes (Protected)
	tasks := api.Group("/tasks", protected)
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Get("/", taskHandler.ListTasks)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Patch("/:id", taskHandler.UpdateTask)
}
