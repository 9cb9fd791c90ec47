package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ProfileStore is the slice of the profiles table the auth flow needs.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	Insert(ctx context.Context, row *models.Profile) error
	Upsert(ctx context.Context, row *models.Profile) error
}

// Result is the outcome of an auth operation, shaped for the sign-in screens.
type Result struct {
	Success              bool              `json:"success"`
	RequiresVerification bool              `json:"requires_verification,omitempty"`
	IsNewUser            bool              `json:"is_new_user,omitempty"`
	Phone                string            `json:"phone,omitempty"`
	Email                string            `json:"email,omitempty"`
	Message              string            `json:"message,omitempty"`
	Session              *provider.Session `json:"session,omitempty"`
}

// SignUpInput is what the sign-up form collects.
type SignUpInput struct {
	Identity string
	Password string
	Username string
	Location string
}

// AuthGateway classifies identities, calls the provider and turns its failures into
// messages a producer can act on.
type AuthGateway struct {
	provider    provider.Provider
	profiles    ProfileStore
	parser      *identity.Parser
	redirectURL string
	inflight    *atomic.Int32
	logger      *zap.Logger
}

// NewAuthGateway creates a new AuthGateway.
func NewAuthGateway(p provider.Provider, profiles ProfileStore, parser *identity.Parser, redirectURL string, logger *zap.Logger) *AuthGateway {
	if parser == nil {
		parser = identity.NewParser(identity.DefaultCallingCode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGateway{
		provider:    p,
		profiles:    profiles,
		parser:      parser,
		redirectURL: redirectURL,
		inflight:    atomic.NewInt32(0),
		logger:      logger,
	}
}

// Loading reports whether any gateway call is in flight.
func (g *AuthGateway) Loading() bool {
	return g.inflight.Load() > 0
}

// Parser returns the identity parser the gateway classifies with.
func (g *AuthGateway) Parser() *identity.Parser { return g.parser }

func (g *AuthGateway) track() func() {
	g.inflight.Inc()
	return func() { g.inflight.Dec() }
}

func (g *AuthGateway) fail(op string, err error) error {
	g.logger.Warn("auth operation failed", zap.String("op", op), zap.Error(err))
	return userError(err)
}

// SignUp creates an account for an email or phone identity and its profile row.
// Phone accounts must then be verified with the passcode the provider sends.
func (g *AuthGateway) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	defer g.track()()

	id, err := g.parser.Parse(in.Identity)
	if err != nil {
		return nil, validationError(MsgInvalidIdentity)
	}
	if in.Password == "" {
		return nil, validationError(MsgPasswordRequired)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = defaultUsername(id)
	}
	meta := map[string]any{"username": username, "location": in.Location}

	if id.IsEmail() {
		user, err := g.provider.SignUpEmail(ctx, id.Value, in.Password, g.redirectURL, meta)
		if err != nil {
			return nil, g.fail("sign up", err)
		}
		email := id.Value
		profile := &models.Profile{ID: user.ID, Username: username, Location: in.Location, Email: &email}
		if err := g.profiles.Insert(ctx, profile); err != nil {
			return nil, g.fail("create profile", err)
		}
		return &Result{
			Success: true,
			Email:   id.Value,
			Message: "Compte créé. Consultez votre email pour confirmer votre inscription",
		}, nil
	}

	user, err := g.provider.SignUpPhone(ctx, id.Value, in.Password, meta)
	if err != nil {
		return nil, g.fail("sign up", err)
	}
	profile := &models.Profile{ID: user.ID, Username: username, Phone: id.Value, Location: in.Location}
	if err := g.profiles.Insert(ctx, profile); err != nil {
		return nil, g.fail("create profile", err)
	}
	return &Result{
		Success:              true,
		RequiresVerification: true,
		Phone:                id.Value,
		Message:              codeSentMessage(id.Value),
	}, nil
}

// SignIn authenticates with a password. An unconfirmed phone account is sent a fresh
// passcode instead of failing.
func (g *AuthGateway) SignIn(ctx context.Context, rawIdentity, password string) (*Result, error) {
	defer g.track()()

	id, err := g.parser.Parse(rawIdentity)
	if err != nil {
		return nil, validationError(MsgInvalidIdentity)
	}
	if password == "" {
		return nil, validationError(MsgPasswordRequired)
	}

	session, err := g.provider.SignInWithPassword(ctx, id, password)
	if err != nil {
		if id.IsPhone() && isNotConfirmed(err) {
			if _, otpErr := g.provider.SignInWithOTP(ctx, id.Value, false); otpErr != nil {
				return nil, g.fail("send code", otpErr)
			}
			return &Result{
				Success:              true,
				RequiresVerification: true,
				Phone:                id.Value,
				Message:              codeSentMessage(id.Value),
			}, nil
		}
		return nil, g.fail("sign in", err)
	}
	return &Result{Success: true, Session: session, Email: session.User.Email, Phone: session.User.Phone}, nil
}

// SignInWithOTP sends a passcode to phone, creating the account when it does not exist.
func (g *AuthGateway) SignInWithOTP(ctx context.Context, phone string) (*Result, error) {
	defer g.track()()

	id, err := g.parser.Parse(phone)
	if err != nil || !id.IsPhone() {
		return nil, validationError(MsgInvalidPhone)
	}
	res, err := g.provider.SignInWithOTP(ctx, id.Value, true)
	if err != nil {
		return nil, g.fail("send code", err)
	}
	return &Result{
		Success:              true,
		RequiresVerification: true,
		IsNewUser:            res.IsNewUser,
		Phone:                id.Value,
		Message:              codeSentMessage(id.Value),
	}, nil
}

// VerifyOTP checks the passcode sent to phone. IsNewUser is set when the account has no
// profile yet.
func (g *AuthGateway) VerifyOTP(ctx context.Context, phone, token string) (*Result, error) {
	defer g.track()()

	id, err := g.parser.Parse(phone)
	if err != nil || !id.IsPhone() {
		return nil, validationError(MsgInvalidPhone)
	}
	token = strings.TrimSpace(token)
	if !codePattern.MatchString(token) {
		return nil, validationError(MsgInvalidCode)
	}

	session, err := g.provider.VerifyOTP(ctx, id.Value, token)
	if err != nil {
		return nil, g.fail("verify code", err)
	}

	isNew := false
	if _, err := g.profiles.GetByID(ctx, session.User.ID); err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, g.fail("load profile", err)
		}
		isNew = true
	}
	return &Result{Success: true, Session: session, IsNewUser: isNew, Phone: id.Value}, nil
}

// ResetPassword asks the provider to mail a recovery link.
func (g *AuthGateway) ResetPassword(ctx context.Context, email string) (*Result, error) {
	defer g.track()()

	email = strings.TrimSpace(email)
	if !identity.IsEmail(email) {
		return nil, validationError(MsgInvalidEmail)
	}
	if err := g.provider.ResetPasswordForEmail(ctx, email, g.redirectURL); err != nil {
		return nil, g.fail("reset password", err)
	}
	return &Result{
		Success: true,
		Email:   email,
		Message: "Un email de réinitialisation vous a été envoyé",
	}, nil
}

func isNotConfirmed(err error) bool {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return strings.Contains(strings.ToLower(perr.Message), "not confirmed")
	}
	return strings.Contains(strings.ToLower(err.Error()), "not confirmed")
}

func codeSentMessage(phone string) string {
	return fmt.Sprintf("Un code de vérification a été envoyé au %s", phone)
}

func defaultUsername(id identity.Identity) string {
	if id.IsEmail() {
		local, _, _ := strings.Cut(id.Value, "@")
		if len(local) >= 2 {
			return local
		}
	}
	if len(id.Value) >= 4 {
		return "producteur-" + id.Value[len(id.Value)-4:]
	}
	return "producteur"
}
