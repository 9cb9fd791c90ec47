package flow

import (
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
)

// Flow is the state of one sign-in form.
type Flow struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Step Step   `json:"step"`
	// Origin is the step that led to the passcode step; Back returns there.
	Origin     Step              `json:"origin,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Email      string            `json:"email,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	IsNewUser  bool              `json:"is_new_user,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	LastSentAt time.Time         `json:"last_sent_at,omitempty"`
	Session    *provider.Session `json:"session,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (f *Flow) fire(ev Event) error {
	if f.Step == StepOTP && ev == EventBack {
		f.Step = f.Origin
		f.Origin = ""
		f.Phone = ""
		f.LastSentAt = time.Time{}
		return nil
	}
	to, err := Next(f.Step, ev)
	if err != nil {
		return err
	}
	f.Step = to
	return nil
}

func (f *Flow) toOTP(ev Event, phone string, now time.Time) error {
	origin := f.Step
	if err := f.fire(ev); err != nil {
		return err
	}
	f.Origin = origin
	f.Phone = phone
	f.LastSentAt = now
	return nil
}
