package handlers

import (
	"github.com/eti-roma/verte-culture-connect-sub000/internal/middleware"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/gofiber/fiber/v2"
)

// NotificationHandler serves the caller's notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// RegisterRoutes registers the notification routes with the Fiber app.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	notifications := router.Group("/notifications")
	notifications.Get("/", h.HandleList)
	notifications.Post("/:id/read", h.HandleMarkRead)
}

// HandleList returns the caller's notifications; ?unread=true keeps unread ones only.
func (h *NotificationHandler) HandleList(c *fiber.Ctx) error {
	rows, err := h.service.List(c.UserContext(), middleware.UserID(c), c.QueryBool("unread"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

// HandleMarkRead flags a notification as read.
func (h *NotificationHandler) HandleMarkRead(c *fiber.Ctx) error {
	if err := h.service.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
