package handlers

import (
	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	gateway   *services.AuthGateway
	recoverer provider.Recoverer
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. recoverer may be nil when the provider hosts
// its own confirmation and recovery pages.
func NewAuthHandler(gateway *services.AuthGateway, recoverer provider.Recoverer, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		gateway:   gateway,
		recoverer: recoverer,
		validate:  validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/signup", h.HandleSignUp)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/otp", h.HandleSendOTP)
	authRoutes.Post("/otp/verify", h.HandleVerifyOTP)
	authRoutes.Post("/password/reset", h.HandleResetPassword)
	authRoutes.Post("/classify", h.HandleClassify)
	authRoutes.Get("/status", h.HandleStatus)
	if h.recoverer != nil {
		authRoutes.Post("/confirm", h.HandleConfirm)
		authRoutes.Post("/password/update", h.HandleUpdatePassword)
	}
}

// SignUpRequest represents the request body for sign-up.
type SignUpRequest struct {
	Identity string `json:"identity" validate:"required"`
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"omitempty,min=2,max=100"`
	Location string `json:"location" validate:"omitempty,max=255"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Identity string `json:"identity" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// PhoneRequest carries a phone number.
type PhoneRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// VerifyRequest carries a phone number and the passcode sent to it.
type VerifyRequest struct {
	Phone string `json:"phone" validate:"required"`
	Token string `json:"token" validate:"required"`
}

// EmailRequest carries an email address.
type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

// ClassifyRequest carries free text typed in the identity field.
type ClassifyRequest struct {
	Identity string `json:"identity"`
}

// TokenRequest carries a confirmation token.
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// UpdatePasswordRequest carries a recovery token and the new password.
type UpdatePasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) parse(c *fiber.Ctx, req any) (bool, error) {
	ok, err := bind(c, h.validate, req)
	if !ok {
		h.logger.Debug("rejected request body", zap.String("path", c.Path()))
	}
	return ok, err
}

func (h *AuthHandler) result(c *fiber.Ctx, status int, res *services.Result, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(status).JSON(res)
}

// HandleSignUp creates an email or phone account.
func (h *AuthHandler) HandleSignUp(c *fiber.Ctx) error {
	var req SignUpRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	res, err := h.gateway.SignUp(c.UserContext(), services.SignUpInput(req))
	return h.result(c, fiber.StatusCreated, res, err)
}

// HandleLogin signs in with a password.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	res, err := h.gateway.SignIn(c.UserContext(), req.Identity, req.Password)
	return h.result(c, fiber.StatusOK, res, err)
}

// HandleSendOTP sends a passcode by SMS.
func (h *AuthHandler) HandleSendOTP(c *fiber.Ctx) error {
	var req PhoneRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	res, err := h.gateway.SignInWithOTP(c.UserContext(), req.Phone)
	return h.result(c, fiber.StatusOK, res, err)
}

// HandleVerifyOTP checks a passcode and opens a session.
func (h *AuthHandler) HandleVerifyOTP(c *fiber.Ctx) error {
	var req VerifyRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	res, err := h.gateway.VerifyOTP(c.UserContext(), req.Phone, req.Token)
	return h.result(c, fiber.StatusOK, res, err)
}

// HandleResetPassword mails a recovery link.
func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	res, err := h.gateway.ResetPassword(c.UserContext(), req.Email)
	return h.result(c, fiber.StatusOK, res, err)
}

// HandleClassify tells whether the identity field holds an email or a phone number, and
// its normalized value.
func (h *AuthHandler) HandleClassify(c *fiber.Ctx) error {
	var req ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	id, err := h.gateway.Parser().Parse(req.Identity)
	if err != nil {
		return c.JSON(fiber.Map{"valid": false, "kind": "", "value": ""})
	}
	return c.JSON(fiber.Map{"valid": true, "kind": id.Kind.String(), "value": id.Value})
}

// HandleStatus reports whether auth calls are in flight.
func (h *AuthHandler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"loading":      h.gateway.Loading(),
		"calling_code": h.gateway.Parser().CallingCode(),
		"default_code": identity.DefaultCallingCode,
	})
}

// HandleConfirm completes an email confirmation link.
func (h *AuthHandler) HandleConfirm(c *fiber.Ctx) error {
	var req TokenRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	sess, err := h.recoverer.ConfirmEmail(c.UserContext(), req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(services.Result{Success: true, Session: sess, Email: sess.User.Email, Message: "Email confirmé"})
}

// HandleUpdatePassword sets a new password from a recovery link.
func (h *AuthHandler) HandleUpdatePassword(c *fiber.Ctx) error {
	var req UpdatePasswordRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}
	if err := h.recoverer.UpdatePassword(c.UserContext(), req.Token, req.Password); err != nil {
		return respondError(c, err)
	}
	return c.JSON(services.Result{Success: true, Message: "Mot de passe mis à jour"})
}
