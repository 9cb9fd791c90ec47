// Package flow drives the multi-step sign-in form: password login, sign-up, password
// recovery, phone passcode and profile completion.
package flow

import (
	"errors"
	"fmt"
)

// Step is a screen of the form.
type Step string

const (
	StepLogin   Step = "login"
	StepSignup  Step = "signup"
	StepForgot  Step = "forgot_password"
	StepPhone   Step = "phone"
	StepOTP     Step = "otp"
	StepProfile Step = "profile"
	StepDone    Step = "done"
)

// Event moves a flow between steps.
type Event string

const (
	EventShowLogin            Event = "show_login"
	EventShowSignup           Event = "show_signup"
	EventShowForgot           Event = "show_forgot"
	EventBack                 Event = "back"
	EventLoginSucceeded       Event = "login_succeeded"
	EventVerificationRequired Event = "verification_required"
	EventSignupCompleted      Event = "signup_completed"
	EventResetSent            Event = "reset_sent"
	EventCodeSent             Event = "code_sent"
	EventVerifiedNewUser      Event = "verified_new_user"
	EventVerifiedExistingUser Event = "verified_existing_user"
	EventProfileSaved         Event = "profile_saved"
)

// ErrInvalidTransition is returned for an event the current step does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// transitions lists every accepted move. Back from the passcode step is resolved against
// the step the flow came from and is handled by the Flow itself.
var transitions = map[Step]map[Event]Step{
	StepLogin: {
		EventShowSignup:           StepSignup,
		EventShowForgot:           StepForgot,
		EventLoginSucceeded:       StepDone,
		EventVerificationRequired: StepOTP,
	},
	StepSignup: {
		EventShowLogin:            StepLogin,
		EventBack:                 StepLogin,
		EventSignupCompleted:      StepLogin,
		EventVerificationRequired: StepOTP,
	},
	StepForgot: {
		EventShowLogin: StepLogin,
		EventBack:      StepLogin,
		EventResetSent: StepLogin,
	},
	StepPhone: {
		EventCodeSent: StepOTP,
	},
	StepOTP: {
		EventVerifiedNewUser:      StepProfile,
		EventVerifiedExistingUser: StepDone,
	},
	StepProfile: {
		EventProfileSaved: StepDone,
	},
}

// Next returns the step reached from from on ev.
func Next(from Step, ev Event) (Step, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%s on %s: %w", ev, from, ErrInvalidTransition)
}

// Kind selects the first step of a new flow.
type Kind string

const (
	KindPassword Kind = "password"
	KindSignup   Kind = "signup"
	KindPhone    Kind = "phone"
)

func (k Kind) start() (Step, error) {
	switch k {
	case KindPassword, "":
		return StepLogin, nil
	case KindSignup:
		return StepSignup, nil
	case KindPhone:
		return StepPhone, nil
	default:
		return "", fmt.Errorf("unknown flow kind %q", k)
	}
}
