package handlers

import (
	"math"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/flow"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/geo"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// FlowHandler exposes the multi-step sign-in form.
type FlowHandler struct {
	controller *flow.Controller
	validate   *validator.Validate
}

// NewFlowHandler creates a new FlowHandler.
func NewFlowHandler(controller *flow.Controller) *FlowHandler {
	return &FlowHandler{controller: controller, validate: validator.New()}
}

// RegisterRoutes registers the flow routes with the Fiber app.
func (h *FlowHandler) RegisterRoutes(router fiber.Router) {
	flows := router.Group("/auth/flows")
	flows.Post("/", h.HandleStart)
	flows.Get("/:id", h.HandleGet)
	flows.Post("/:id/login", h.HandleLogin)
	flows.Post("/:id/signup", h.HandleSignUp)
	flows.Post("/:id/forgot", h.HandleForgot)
	flows.Post("/:id/phone", h.HandlePhone)
	flows.Post("/:id/code", h.HandleCode)
	flows.Post("/:id/profile", h.HandleProfile)
	flows.Post("/:id/resend", h.HandleResend)
	flows.Post("/:id/back", h.HandleBack)
	flows.Post("/:id/show", h.HandleShow)
}

// StartFlowRequest selects the first screen.
type StartFlowRequest struct {
	Kind flow.Kind `json:"kind" validate:"omitempty,oneof=password signup phone"`
}

// CodeRequest carries a passcode.
type CodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// ShowRequest names the screen to switch to.
type ShowRequest struct {
	Step flow.Step `json:"step" validate:"required,oneof=login signup forgot_password"`
}

// ProfileRequest is the profile form.
type ProfileRequest struct {
	Username    string           `json:"username" validate:"omitempty,min=2,max=100"`
	Phone       string           `json:"phone"`
	Location    string           `json:"location" validate:"omitempty,max=255"`
	Email       string           `json:"email"`
	Coordinates *geo.Coordinates `json:"coordinates" validate:"omitempty"`
}

func (r ProfileRequest) input(ip string) services.ProfileInput {
	return services.ProfileInput{
		Username:    r.Username,
		Phone:       r.Phone,
		Location:    r.Location,
		Email:       r.Email,
		Coordinates: r.Coordinates,
		IP:          ip,
	}
}

// respond writes the flow with the remaining resend wait. Failures keep the flow in the
// body so the form can show its error.
func (h *FlowHandler) respond(c *fiber.Ctx, f flow.Flow, err error) error {
	body := fiber.Map{
		"flow":      f,
		"resend_in": int(math.Ceil(h.controller.RemainingCooldown(f).Seconds())),
	}
	if err == nil {
		return c.JSON(body)
	}

	status := statusFor(err)
	if status == 0 {
		return err
	}
	message := f.Error
	if message == "" {
		message = services.TranslateError(err)
	}
	body["message"] = message
	body["error"] = err.Error()
	return c.Status(status).JSON(body)
}

// HandleStart opens a flow.
func (h *FlowHandler) HandleStart(c *fiber.Ctx) error {
	var req StartFlowRequest
	if len(c.Body()) > 0 {
		if ok, err := bind(c, h.validate, &req); !ok {
			return err
		}
	}
	f, err := h.controller.Start(req.Kind)
	if err != nil {
		return respondError(c, err)
	}
	c.Status(fiber.StatusCreated)
	return h.respond(c, f, nil)
}

// HandleGet returns a flow.
func (h *FlowHandler) HandleGet(c *fiber.Ctx) error {
	f, err := h.controller.Get(c.Params("id"))
	return h.respond(c, f, err)
}

// HandleLogin submits the login screen.
func (h *FlowHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitLogin(c.UserContext(), c.Params("id"), req.Identity, req.Password)
	return h.respond(c, f, err)
}

// HandleSignUp submits the sign-up screen.
func (h *FlowHandler) HandleSignUp(c *fiber.Ctx) error {
	var req SignUpRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitSignup(c.UserContext(), c.Params("id"), services.SignUpInput(req))
	return h.respond(c, f, err)
}

// HandleForgot submits the password recovery screen.
func (h *FlowHandler) HandleForgot(c *fiber.Ctx) error {
	var req EmailRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitForgot(c.UserContext(), c.Params("id"), req.Email)
	return h.respond(c, f, err)
}

// HandlePhone submits the phone screen.
func (h *FlowHandler) HandlePhone(c *fiber.Ctx) error {
	var req PhoneRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitPhone(c.UserContext(), c.Params("id"), req.Phone)
	return h.respond(c, f, err)
}

// HandleCode submits the passcode screen.
func (h *FlowHandler) HandleCode(c *fiber.Ctx) error {
	var req CodeRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitCode(c.UserContext(), c.Params("id"), req.Code)
	return h.respond(c, f, err)
}

// HandleProfile submits the profile screen.
func (h *FlowHandler) HandleProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.SubmitProfile(c.UserContext(), c.Params("id"), req.input(c.IP()))
	return h.respond(c, f, err)
}

// HandleResend asks for a new passcode.
func (h *FlowHandler) HandleResend(c *fiber.Ctx) error {
	f, err := h.controller.Resend(c.UserContext(), c.Params("id"))
	return h.respond(c, f, err)
}

// HandleBack leaves the current screen.
func (h *FlowHandler) HandleBack(c *fiber.Ctx) error {
	f, err := h.controller.Back(c.Params("id"))
	return h.respond(c, f, err)
}

// HandleShow switches between the login, sign-up and recovery screens.
func (h *FlowHandler) HandleShow(c *fiber.Ctx) error {
	var req ShowRequest
	if ok, err := bind(c, h.validate, &req); !ok {
		return err
	}
	f, err := h.controller.Show(c.Params("id"), req.Step)
	return h.respond(c, f, err)
}
