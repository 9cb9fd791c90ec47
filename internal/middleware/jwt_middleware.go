package middleware

import (
	"context"
	"strings"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set by AuthRequired.
const (
	LocalUserID      = "user_id"
	LocalEmail       = "email"
	LocalPhone       = "phone"
	LocalAccessToken = "access_token"
)

// TokenVerifier checks access tokens.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (*provider.Claims, error)
}

// AuthRequired is a Fiber middleware to check for a valid bearer token.
func AuthRequired(verifier TokenVerifier, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		tokenString := parts[1]
		claims, err := verifier.VerifyToken(c.UserContext(), tokenString)
		if err != nil {
			logger.Debug("token verification failed", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Votre session a expiré. Veuillez vous reconnecter",
				"error":   err.Error(),
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalPhone, claims.Phone)
		c.Locals(LocalAccessToken, tokenString)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" on public routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// AccessToken returns the bearer token of the request.
func AccessToken(c *fiber.Ctx) string {
	token, _ := c.Locals(LocalAccessToken).(string)
	return token
}
