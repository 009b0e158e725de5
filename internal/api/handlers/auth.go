/**
 * @description
 * Auth API Handlers.
 * Exchanges a signed wallet message for a session token.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/services"
)

// LoginService is the auth flow used by AuthHandler.
type LoginService interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

type AuthHandler struct {
	auth LoginService
	now  func() time.Time
}

func NewAuthHandler(auth LoginService) *AuthHandler {
	return &AuthHandler{auth: auth, now: time.Now}
}

// Login verifies the wallet signature and returns a session token
// POST /api/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req services.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.auth.Login(c.UserContext(), req)
	if err != nil {
		status, message := loginError(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("Login: failed for %s: %v", req.WalletAddress, err)
		} else {
			logger.Info("Login: rejected %s: %v", req.WalletAddress, err)
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"walletAddress": result.WalletAddress,
		"token":         result.Token,
		"expiresAt":     result.ExpiresAt,
	})
}

// GetLoginMessage returns a freshly timestamped message for the client to sign
// GET /api/login/message
func (h *AuthHandler) GetLoginMessage(c *fiber.Ctx) error {
	now := h.now()
	return c.JSON(fiber.Map{
		"message":   services.LoginMessage(now),
		"timestamp": now.UnixMilli(),
	})
}

// loginError maps a login failure to a status and a client-safe message.
func loginError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrMissingLoginFields):
		return fiber.StatusBadRequest, services.ErrMissingLoginFields.Error()
	case errors.Is(err, services.ErrUnsupportedWalletType):
		return fiber.StatusBadRequest, "unsupported wallet type"
	case errors.Is(err, services.ErrLoginExpired):
		return fiber.StatusBadRequest, "login request expired"
	case errors.Is(err, services.ErrMissingTimestamp):
		return fiber.StatusBadRequest, "login message must include a timestamp"
	case errors.Is(err, services.ErrInvalidAddress):
		return fiber.StatusBadRequest, "invalid wallet address"
	case errors.Is(err, services.ErrInvalidSignatureFormat), errors.Is(err, services.ErrSignatureMismatch):
		return fiber.StatusBadRequest, "invalid signature"
	case errors.Is(err, services.ErrMessageReused):
		return fiber.StatusBadRequest, "login message already used"
	case errors.Is(err, services.ErrVerifierUnavailable):
		return fiber.StatusInternalServerError, "signature verification unavailable, please retry"
	default:
		return fiber.StatusInternalServerError, "login failed"
	}
}
