/**
 * @description
 * Authentication middleware using self-issued session JWTs.
 * Validates Bearer tokens and loads the wallet's user record.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - backend/internal/services: session validation and user lookup
 *
 * @notes
 * - A missing user answers exactly like an invalid token so callers cannot probe
 *   which wallets are registered. The distinct reason is only logged.
 */

package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/services"
)

const userLocalKey = "user"

// TokenValidator parses a session token.
type TokenValidator interface {
	Validate(token string) (*services.SessionClaims, error)
}

// UserFinder loads the user a session belongs to.
type UserFinder interface {
	FindByWallet(ctx context.Context, walletAddress string) (*models.User, error)
}

// Protected protects routes requiring authentication
func Protected(sessions TokenValidator, users UserFinder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Get Token from Header
		authHeader := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		var tokenString string
		switch {
		case authHeader == "", authHeader == "Bearer":
		case strings.HasPrefix(authHeader, "Bearer "):
			tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		default:
			logger.Warn("Auth: malformed authorization header on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		// 2. Parse and Validate Token
		claims, err := sessions.Validate(tokenString)
		if err != nil {
			if errors.Is(err, services.ErrNoToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no token"})
			}
			logger.Warn("Auth: rejected token on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		// 3. Resolve the wallet's user
		user, err := users.FindByWallet(c.UserContext(), claims.WalletAddress)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				logger.Warn("Auth: valid token for unknown wallet %s", claims.WalletAddress)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
			}
			logger.Error("Auth: failed to load user %s: %v", claims.WalletAddress, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}

		// 4. Attach user to context
		c.Locals(userLocalKey, user)

		return c.Next()
	}
}

// GetUser returns the authenticated user from context
func GetUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(userLocalKey).(*models.User)
	if !ok || user == nil {
		return nil, errors.New("user not found in context")
	}
	return user, nil
}
