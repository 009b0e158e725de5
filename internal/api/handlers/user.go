/**
 * @description
 * User API Handlers.
 * Returns the authenticated wallet's profile and uploaded file metadata.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/middleware
 */

package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/api/middleware"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/services"
)

// UserReader is the read side of the user store.
type UserReader interface {
	FindByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	ListHealthFiles(ctx context.Context, userID uuid.UUID) ([]models.HealthFile, error)
}

type UserHandler struct {
	users UserReader
}

func NewUserHandler(users UserReader) *UserHandler {
	return &UserHandler{users: users}
}

// GetUser returns the current authenticated user
// GET /api/user
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	current, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	// Reload so a user removed since the middleware ran reads as 404.
	user, err := h.users.FindByWallet(c.UserContext(), current.WalletAddress)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		logger.Error("GetUser: failed to fetch %s: %v", current.WalletAddress, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	files, err := h.users.ListHealthFiles(c.UserContext(), user.ID)
	if err != nil {
		logger.Error("GetUser: failed to list files for %s: %v", user.WalletAddress, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if files == nil {
		files = []models.HealthFile{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"walletAddress": user.WalletAddress,
		"healthData":    files,
	})
}
