package handlers

import (
	"io"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/middleware"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PhotoHandler accepts crop photos for analysis.
type PhotoHandler struct {
	service *services.PhotoAnalysisService
}

// NewPhotoHandler creates a new PhotoHandler.
func NewPhotoHandler(service *services.PhotoAnalysisService) *PhotoHandler {
	return &PhotoHandler{service: service}
}

// RegisterRoutes registers the photo routes with the Fiber app.
func (h *PhotoHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/photos", h.HandleUpload)
}

// HandleUpload takes a multipart "photo" file and an optional "culture_type" field.
func (h *PhotoHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Aucune photo reçue",
			"error":   err.Error(),
		})
	}

	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	row, err := h.service.Submit(c.UserContext(), middleware.UserID(c), services.PhotoInput{
		CultureType: c.FormValue("culture_type"),
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Filename:    file.Filename,
		Data:        data,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}
