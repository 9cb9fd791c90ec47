package handlers

import (
	"errors"
	"fmt"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/flow"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// statusFor picks the HTTP status of err; zero means the error boundary should handle it.
func statusFor(err error) int {
	var perr *provider.Error
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, flow.ErrResendCooldown):
		return fiber.StatusTooManyRequests
	case errors.Is(err, flow.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, flow.ErrNotFound), errors.Is(err, repositories.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repositories.ErrConflict):
		return fiber.StatusConflict
	case errors.As(err, &perr):
		if perr.Status >= 400 && perr.Status < 500 {
			return perr.Status
		}
		return fiber.StatusBadGateway
	}
	return 0
}

// respondError writes err as {"message", "error"} JSON with a French message. Unknown
// errors are passed on to the app's ErrorHandler.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == 0 {
		return err
	}
	return c.Status(status).JSON(fiber.Map{
		"message": services.TranslateError(err),
		"error":   err.Error(),
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badBody(c, err)
	}
	errorMessages := make(map[string]string, len(verrs))
	for _, e := range verrs {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}

// bind decodes and validates the body into req. When it returns false the 400 response
// has been written and err is the outcome of writing it.
func bind(c *fiber.Ctx, v *validator.Validate, req any) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, badBody(c, err)
	}
	if err := v.Struct(req); err != nil {
		return false, validationFailed(c, err)
	}
	return true, nil
}
