// Package provider abstracts the hosted auth provider: account creation, password and
// one-time-passcode sign-in, password recovery, sessions and auth change events.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
)

// User is an account as reported by the provider.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is an authenticated session issued by the provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// OTPResult describes a passcode request.
type OTPResult struct {
	Phone     string `json:"phone"`
	IsNewUser bool   `json:"is_new_user"`
}

// Claims are the facts extracted from a verified access token.
type Claims struct {
	UserID string
	Email  string
	Phone  string
}

// Provider is the hosted auth API. It does the hashing, token issuance and message
// dispatch; callers only orchestrate.
type Provider interface {
	SignUpEmail(ctx context.Context, email, password, redirectTo string, meta map[string]any) (*User, error)
	SignUpPhone(ctx context.Context, phone, password string, meta map[string]any) (*User, error)
	SignInWithPassword(ctx context.Context, id identity.Identity, password string) (*Session, error)
	SignInWithOTP(ctx context.Context, phone string, createUser bool) (*OTPResult, error)
	VerifyOTP(ctx context.Context, phone, token string) (*Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
	VerifyToken(ctx context.Context, accessToken string) (*Claims, error)
	OnAuthStateChange(fn func(Event)) (unsubscribe func())
}

// Recoverer is implemented by providers that complete email confirmation and password
// recovery themselves instead of on a hosted page.
type Recoverer interface {
	ConfirmEmail(ctx context.Context, token string) (*Session, error)
	UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error
}

// Error is a failure reported by the provider. Message is the provider's own text and is
// what callers translate for users.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth provider: %s (status %d)", e.Message, e.Status)
}

// Messages returned by the provider; callers match on substrings of these.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgPhoneNotConfirmed  = "Phone not confirmed"
	MsgAlreadyRegistered  = "User already registered"
	MsgInvalidOTP         = "Token has expired or is invalid"
	MsgWeakPassword       = "Password should be at least 6 characters"
	MsgSignupsDisabled    = "Signups not allowed for otp"
	MsgInvalidJWT         = "invalid JWT"
)

func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone != "" && !strings.HasPrefix(phone, "+") {
		return "+" + phone
	}
	return phone
}
