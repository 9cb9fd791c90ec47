package middleware

import (
	"errors"
	"fmt"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const unexpectedMessage = "Une erreur inattendue est survenue"

// ErrorHandler is the last line for errors returned or raised by handlers. Failures of an
// authenticated request are added to that user's error log.
func ErrorHandler(states *session.Registry, logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := unexpectedMessage

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		if userID := UserID(c); userID != "" && states != nil {
			states.Get(userID).RecordError(message, c.Path())
		}

		body := fiber.Map{"message": message, "error": err.Error()}
		if code >= fiber.StatusInternalServerError {
			body["retry"] = true
		}
		return c.Status(code).JSON(body)
	}
}

// Recover turns panics into errors handled by ErrorHandler.
func Recover(logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			logger.Error("panic recovered", zap.String("path", c.Path()), zap.String("panic", fmt.Sprint(e)), zap.Stack("stack"))
		},
	})
}
