/**
 * @description
 * Analysis API Handlers.
 * Multipart upload routes for health data and medical images, plus history.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/uploads: staging, validation and cleanup
 * - backend/internal/services
 *
 * @notes
 * - Every route stages its file through uploads.Handle, so the temp file is gone
 *   before the response is written.
 * - Provider and parsing failures are reported with a generic message.
 */

package handlers

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/api/middleware"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/services"
	"github.com/vitalchain-project/backend/internal/uploads"
)

const defaultHistoryLimit = 20

// Analyzer runs analyses on staged uploads.
type Analyzer interface {
	AnalyzeHealthFile(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.AnalysisRecord, error)
	AnalyzeImage(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.ImageAnalysisRecord, error)
	RecordUpload(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.HealthFile, error)
}

// HistoryReader lists persisted analyses.
type HistoryReader interface {
	ListAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalysisRecord, error)
	ListImageAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.ImageAnalysisRecord, error)
}

type AnalysisHandler struct {
	analyzer Analyzer
	history  HistoryReader
	uploads  *uploads.Manager

	healthData uploads.Policy
	image      uploads.Policy
	legacy     uploads.Policy
}

func NewAnalysisHandler(analyzer Analyzer, history HistoryReader, manager *uploads.Manager, maxUploadSize int64) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:   analyzer,
		history:    history,
		uploads:    manager,
		healthData: uploads.HealthDataPolicy(maxUploadSize),
		image:      uploads.ImagePolicy(maxUploadSize),
		legacy:     uploads.LegacyPolicy(maxUploadSize),
	}
}

// AnalyzeHealthData analyzes an uploaded health data file
// POST /api/analyze
func (h *AnalysisHandler) AnalyzeHealthData(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	record, err := uploads.Handle(c.UserContext(), h.uploads, formFile(c, h.healthData), h.healthData,
		func(ctx context.Context, file *uploads.StagedFile) (*models.AnalysisRecord, error) {
			return h.analyzer.AnalyzeHealthFile(ctx, user, file)
		})
	if err != nil {
		status, message := analysisError(err)
		logger.Error("AnalyzeHealthData: %s: %v", user.WalletAddress, err)
		return c.Status(status).JSON(fiber.Map{"error": message})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"analysis": record})
}

// AnalyzeImage analyzes an uploaded medical image
// POST /api/image-analysis
func (h *AnalysisHandler) AnalyzeImage(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Unauthorized"})
	}

	record, err := uploads.Handle(c.UserContext(), h.uploads, formFile(c, h.image), h.image,
		func(ctx context.Context, file *uploads.StagedFile) (*models.ImageAnalysisRecord, error) {
			return h.analyzer.AnalyzeImage(ctx, user, file)
		})
	if err != nil {
		status, message := analysisError(err)
		logger.Error("AnalyzeImage: %s: %v", user.WalletAddress, err)
		return c.Status(status).JSON(fiber.Map{"success": false, "error": message})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "analysis": record})
}

// Upload stores metadata for a health data file without analyzing it
// POST /api/upload
func (h *AnalysisHandler) Upload(c *fiber.Ctx) error {
	return h.upload(c, h.healthData)
}

// LegacyUpload is Upload with the older, more permissive type list
// POST /api/health-data/upload
func (h *AnalysisHandler) LegacyUpload(c *fiber.Ctx) error {
	return h.upload(c, h.legacy)
}

func (h *AnalysisHandler) upload(c *fiber.Ctx, policy uploads.Policy) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	info, err := uploads.Handle(c.UserContext(), h.uploads, formFile(c, policy), policy,
		func(ctx context.Context, file *uploads.StagedFile) (*models.HealthFile, error) {
			return h.analyzer.RecordUpload(ctx, user, file)
		})
	if err != nil {
		status, message := analysisError(err)
		logger.Error("Upload (%s): %s: %v", policy.Name, user.WalletAddress, err)
		return c.Status(status).JSON(fiber.Map{"error": message})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":  "File uploaded successfully",
		"fileInfo": info,
	})
}

// GetAnalysisHistory lists the user's text analyses, newest first
// GET /api/analysis/history?limit=20
func (h *AnalysisHandler) GetAnalysisHistory(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	records, err := h.history.ListAnalyses(c.UserContext(), user.ID, c.QueryInt("limit", defaultHistoryLimit))
	if err != nil {
		logger.Error("GetAnalysisHistory: %s: %v", user.WalletAddress, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load history"})
	}
	if records == nil {
		records = []models.AnalysisRecord{}
	}
	return c.JSON(fiber.Map{"history": records})
}

// GetImageAnalysisHistory lists the user's image analyses, newest first
// GET /api/image-analysis/history?limit=20
func (h *AnalysisHandler) GetImageAnalysisHistory(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	records, err := h.history.ListImageAnalyses(c.UserContext(), user.ID, c.QueryInt("limit", defaultHistoryLimit))
	if err != nil {
		logger.Error("GetImageAnalysisHistory: %s: %v", user.WalletAddress, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load history"})
	}
	if records == nil {
		records = []models.ImageAnalysisRecord{}
	}
	return c.JSON(fiber.Map{"history": records})
}

// formFile returns the policy's multipart file, or nil when the request carries none.
func formFile(c *fiber.Ctx, policy uploads.Policy) *multipart.FileHeader {
	fh, err := c.FormFile(policy.FieldName)
	if err != nil {
		return nil
	}
	return fh
}

// analysisError maps an upload or analysis failure to a status and a client-safe message.
func analysisError(err error) (int, string) {
	var uploadErr *uploads.Error
	switch {
	case errors.As(err, &uploadErr):
		return uploadErr.Status, uploadErr.Message
	case errors.Is(err, services.ErrLegacySpreadsheet):
		return fiber.StatusBadRequest, services.ErrLegacySpreadsheet.Error()
	case errors.Is(err, services.ErrUnreadableFile):
		return fiber.StatusBadRequest, "Uploaded file could not be read"
	case errors.Is(err, services.ErrAnalysisFailed):
		return fiber.StatusInternalServerError, services.ErrAnalysisFailed.Error()
	case errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound, "User not found"
	default:
		return fiber.StatusInternalServerError, "Failed to process upload"
	}
}
