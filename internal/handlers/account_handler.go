package handlers

import (
	"errors"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/geo"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/middleware"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccountHandler serves the signed-in user's own resources.
type AccountHandler struct {
	provider provider.Provider
	profiles *services.ProfileService
	states   *session.Registry
	cities   services.CityResolver
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAccountHandler creates a new AccountHandler. cities may be nil.
func NewAccountHandler(p provider.Provider, profiles *services.ProfileService, states *session.Registry, cities services.CityResolver, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{provider: p, profiles: profiles, states: states, cities: cities, validate: validator.New(), logger: logger}
}

// RegisterRoutes registers the account routes with the Fiber app.
func (h *AccountHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/me", h.HandleMe)
	router.Post("/logout", h.HandleLogout)
	router.Get("/profile", h.HandleGetProfile)
	router.Put("/profile", h.HandleSaveProfile)
	router.Get("/errors", h.HandleErrors)
	router.Put("/locale", h.HandleLocale)
	router.Post("/geo/city", h.HandleCity)
}

// LocaleRequest selects the interface language.
type LocaleRequest struct {
	Locale string `json:"locale" validate:"required"`
}

// HandleMe returns the user, their profile and their state.
func (h *AccountHandler) HandleMe(c *fiber.Ctx) error {
	user, err := h.provider.GetUser(c.UserContext(), middleware.AccessToken(c))
	if err != nil {
		return respondError(c, err)
	}

	profile, err := h.profiles.Get(c.UserContext(), user.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	state := h.states.Get(user.ID)
	return c.JSON(fiber.Map{
		"user":    user,
		"profile": profile,
		"state":   state.Snapshot(),
	})
}

// HandleLogout ends the session and clears the user's state.
func (h *AccountHandler) HandleLogout(c *fiber.Ctx) error {
	if err := h.provider.SignOut(c.UserContext(), middleware.AccessToken(c)); err != nil {
		h.logger.Warn("sign out failed", zap.Error(err))
		return respondError(c, err)
	}
	h.states.Get(middleware.UserID(c)).Clear()
	return c.JSON(fiber.Map{"message": "Vous êtes déconnecté"})
}

// HandleGetProfile returns the caller's profile.
func (h *AccountHandler) HandleGetProfile(c *fiber.Ctx) error {
	profile, err := h.profiles.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// HandleSaveProfile creates or updates the caller's profile.
func (h *AccountHandler) HandleSaveProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	profile, err := h.profiles.Save(c.UserContext(), middleware.UserID(c), req.input(c.IP()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// HandleErrors returns the caller's recent errors.
func (h *AccountHandler) HandleErrors(c *fiber.Ctx) error {
	return c.JSON(h.states.Get(middleware.UserID(c)).Errors())
}

// HandleLocale changes the caller's language.
func (h *AccountHandler) HandleLocale(c *fiber.Ctx) error {
	var req LocaleRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	state := h.states.Get(middleware.UserID(c))
	if err := state.SetLocale(session.Locale(req.Locale)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Langue non prise en charge",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"locale": state.Locale()})
}

// HandleCity guesses the caller's city from coordinates, or from their IP without them.
// Lookup failures yield an empty city.
func (h *AccountHandler) HandleCity(c *fiber.Ctx) error {
	var coords *geo.Coordinates
	if len(c.Body()) > 0 {
		coords = new(geo.Coordinates)
		if ok, err := bind(c, h.validate, coords); !ok {
			return err
		}
	}
	city := ""
	if h.cities != nil {
		city = h.cities.CityFor(c.UserContext(), coords, c.IP())
	}
	return c.JSON(fiber.Map{"city": city})
}
