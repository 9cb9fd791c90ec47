package flow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"go.uber.org/zap"
)

// DefaultResendCooldown is the wait between two passcode sends.
const DefaultResendCooldown = 60 * time.Second

// ErrResendCooldown is returned when a passcode is requested again too soon.
var ErrResendCooldown = errors.New("resend cooldown")

// CooldownError tells how long to wait before asking for another passcode.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("Veuillez patienter %d secondes avant de renvoyer le code", e.Seconds())
}

// Seconds returns the remaining wait rounded up.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

func (e *CooldownError) Unwrap() error { return ErrResendCooldown }

// Gateway is the auth API the form talks to.
type Gateway interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*services.Result, error)
	SignIn(ctx context.Context, identity, password string) (*services.Result, error)
	SignInWithOTP(ctx context.Context, phone string) (*services.Result, error)
	VerifyOTP(ctx context.Context, phone, token string) (*services.Result, error)
	ResetPassword(ctx context.Context, email string) (*services.Result, error)
}

// ProfileSaver stores the profile collected by the last step.
type ProfileSaver interface {
	Save(ctx context.Context, userID string, in services.ProfileInput) (*models.Profile, error)
}

// Controller applies form submissions to flows.
type Controller struct {
	gateway  Gateway
	profiles ProfileSaver
	store    *Store
	cooldown time.Duration
	logger   *zap.Logger

	// Now is replaceable for tests.
	Now func() time.Time
}

// NewController creates a new Controller.
func NewController(gateway Gateway, profiles ProfileSaver, store *Store, cooldown time.Duration, logger *zap.Logger) *Controller {
	if cooldown <= 0 {
		cooldown = DefaultResendCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{gateway: gateway, profiles: profiles, store: store, cooldown: cooldown, logger: logger, Now: time.Now}
}

// Start opens a new flow of the given kind.
func (c *Controller) Start(kind Kind) (Flow, error) {
	step, err := kind.start()
	if err != nil {
		return Flow{}, err
	}
	if kind == "" {
		kind = KindPassword
	}
	return c.store.create(Flow{Kind: kind, Step: step}), nil
}

// Get returns flow id without its session. Tokens are only handed out by the step that
// completes the flow.
func (c *Controller) Get(id string) (Flow, error) {
	f, err := c.store.Get(id)
	f.Session = nil
	return f, err
}

// apply runs fn on flow id in the expected step. A failure from fn is recorded on the flow
// as a user message and the step is left unchanged. A flow that reaches StepDone is
// returned once and dropped from the store.
func (c *Controller) apply(id string, expect Step, fn func(f *Flow) error) (Flow, error) {
	var out Flow
	err := c.store.update(id, func(f *Flow) error {
		defer func() { out = *f }()
		if f.Step != expect {
			return fmt.Errorf("%s expected, flow is in %s: %w", expect, f.Step, ErrInvalidTransition)
		}
		f.Error, f.Message = "", ""

		snapshot := *f
		if err := fn(f); err != nil {
			*f = snapshot
			f.Error = services.TranslateError(err)
			var cooldown *CooldownError
			if errors.As(err, &cooldown) {
				f.Error = cooldown.Error()
			}
			return err
		}
		return nil
	})
	if err == nil && out.Step == StepDone {
		c.store.Delete(id)
	}
	return out, err
}

// Show switches between the login, sign-up and recovery screens.
func (c *Controller) Show(id string, target Step) (Flow, error) {
	var ev Event
	switch target {
	case StepLogin:
		ev = EventShowLogin
	case StepSignup:
		ev = EventShowSignup
	case StepForgot:
		ev = EventShowForgot
	default:
		return Flow{}, fmt.Errorf("cannot show %s: %w", target, ErrInvalidTransition)
	}

	var out Flow
	err := c.store.update(id, func(f *Flow) error {
		defer func() { out = *f }()
		if err := f.fire(ev); err != nil {
			return err
		}
		f.Error, f.Message = "", ""
		return nil
	})
	return out, err
}

// Back leaves the current step. From the passcode step it returns to where the flow came
// from and forgets the phone and cooldown.
func (c *Controller) Back(id string) (Flow, error) {
	var out Flow
	err := c.store.update(id, func(f *Flow) error {
		defer func() { out = *f }()
		if err := f.fire(EventBack); err != nil {
			return err
		}
		f.Error, f.Message = "", ""
		return nil
	})
	return out, err
}

// SubmitLogin signs in with a password. Accounts awaiting phone confirmation continue to
// the passcode step.
func (c *Controller) SubmitLogin(ctx context.Context, id, identity, password string) (Flow, error) {
	return c.apply(id, StepLogin, func(f *Flow) error {
		res, err := c.gateway.SignIn(ctx, identity, password)
		if err != nil {
			return err
		}
		f.Message = res.Message
		if res.RequiresVerification {
			return f.toOTP(EventVerificationRequired, res.Phone, c.Now())
		}
		c.finish(f, res)
		return f.fire(EventLoginSucceeded)
	})
}

// SubmitSignup creates an account. Email accounts return to the login screen to wait for
// confirmation; phone accounts continue to the passcode step.
func (c *Controller) SubmitSignup(ctx context.Context, id string, in services.SignUpInput) (Flow, error) {
	return c.apply(id, StepSignup, func(f *Flow) error {
		res, err := c.gateway.SignUp(ctx, in)
		if err != nil {
			return err
		}
		f.Message = res.Message
		if res.RequiresVerification {
			return f.toOTP(EventVerificationRequired, res.Phone, c.Now())
		}
		f.Email = res.Email
		return f.fire(EventSignupCompleted)
	})
}

// SubmitForgot sends a password recovery email.
func (c *Controller) SubmitForgot(ctx context.Context, id, email string) (Flow, error) {
	return c.apply(id, StepForgot, func(f *Flow) error {
		res, err := c.gateway.ResetPassword(ctx, email)
		if err != nil {
			return err
		}
		f.Message = res.Message
		f.Email = res.Email
		return f.fire(EventResetSent)
	})
}

// SubmitPhone sends a passcode to phone.
func (c *Controller) SubmitPhone(ctx context.Context, id, phone string) (Flow, error) {
	return c.apply(id, StepPhone, func(f *Flow) error {
		res, err := c.gateway.SignInWithOTP(ctx, phone)
		if err != nil {
			return err
		}
		f.Message = res.Message
		f.IsNewUser = res.IsNewUser
		return f.toOTP(EventCodeSent, res.Phone, c.Now())
	})
}

// SubmitCode verifies the passcode. New users continue to the profile step.
func (c *Controller) SubmitCode(ctx context.Context, id, code string) (Flow, error) {
	return c.apply(id, StepOTP, func(f *Flow) error {
		res, err := c.gateway.VerifyOTP(ctx, f.Phone, code)
		if err != nil {
			return err
		}
		c.finish(f, res)
		f.IsNewUser = res.IsNewUser
		if res.IsNewUser {
			return f.fire(EventVerifiedNewUser)
		}
		return f.fire(EventVerifiedExistingUser)
	})
}

// SubmitProfile saves the profile of the verified user.
func (c *Controller) SubmitProfile(ctx context.Context, id string, in services.ProfileInput) (Flow, error) {
	return c.apply(id, StepProfile, func(f *Flow) error {
		if in.Phone == "" {
			in.Phone = f.Phone
		}
		if _, err := c.profiles.Save(ctx, f.UserID, in); err != nil {
			return err
		}
		return f.fire(EventProfileSaved)
	})
}

// Resend sends the passcode again once the cooldown has elapsed.
func (c *Controller) Resend(ctx context.Context, id string) (Flow, error) {
	return c.apply(id, StepOTP, func(f *Flow) error {
		now := c.Now()
		if wait := c.cooldown - now.Sub(f.LastSentAt); wait > 0 {
			return &CooldownError{Remaining: wait}
		}
		res, err := c.gateway.SignInWithOTP(ctx, f.Phone)
		if err != nil {
			return err
		}
		f.Message = res.Message
		f.LastSentAt = now
		return nil
	})
}

// RemainingCooldown returns how long flow f must wait before Resend succeeds.
func (c *Controller) RemainingCooldown(f Flow) time.Duration {
	if f.Step != StepOTP {
		return 0
	}
	if wait := c.cooldown - c.Now().Sub(f.LastSentAt); wait > 0 {
		return wait
	}
	return 0
}

func (c *Controller) finish(f *Flow, res *services.Result) {
	if res.Session == nil {
		return
	}
	f.Session = res.Session
	f.UserID = res.Session.User.ID
	if f.Email == "" {
		f.Email = res.Session.User.Email
	}
	c.logger.Debug("flow authenticated", zap.String("flow", f.ID), zap.String("user_id", f.UserID))
}
