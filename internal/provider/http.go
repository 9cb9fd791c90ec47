package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"

	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
	"go.uber.org/zap"
)

// HTTPProvider talks to a GoTrue-compatible hosted auth API through the auth-go client.
type HTTPProvider struct {
	client auth.Client
	hub    *Hub
	logger *zap.Logger
	now    func() time.Time
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a client for the auth API rooted at baseURL
// (for example https://project.supabase.co). A nil client uses a 15 second timeout.
func NewHTTPProvider(baseURL, apiKey string, client *http.Client, logger *zap.Logger) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := auth.New("", apiKey).
		WithCustomAuthURL(strings.TrimRight(baseURL, "/") + "/auth/v1").
		WithClient(*client)
	return &HTTPProvider{
		client: c,
		hub:    NewHub(),
		logger: logger,
		now:    time.Now,
	}
}

func fromAuthUser(u types.User) *User {
	return &User{
		ID:          u.ID.String(),
		Email:       u.Email,
		Phone:       normalizePhone(u.Phone),
		ConfirmedAt: u.ConfirmedAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (p *HTTPProvider) toSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    p.now().Add(time.Duration(s.ExpiresIn) * time.Second),
		User:         *fromAuthUser(s.User),
	}
}

// SignUpEmail registers an email account. Confirmation links point at the project's
// site URL; the client has no per-request redirect.
func (p *HTTPProvider) SignUpEmail(ctx context.Context, email, password, _ string, meta map[string]any) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.Signup(types.SignupRequest{Email: email, Password: password, Data: meta})
	if err != nil {
		return nil, p.translate("signup", err)
	}
	return signedUpUser(resp), nil
}

// SignUpPhone registers a phone account; the API texts the passcode.
func (p *HTTPProvider) SignUpPhone(ctx context.Context, phone, password string, meta map[string]any) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.Signup(types.SignupRequest{Phone: phone, Password: password, Data: meta})
	if err != nil {
		return nil, p.translate("signup", err)
	}
	return signedUpUser(resp), nil
}

// signedUpUser picks the user out of a signup answer, which is a bare user or a full
// session depending on the project's auto-confirm setting.
func signedUpUser(resp *types.SignupResponse) *User {
	if resp.Session.AccessToken != "" {
		return fromAuthUser(resp.Session.User)
	}
	return fromAuthUser(resp.User)
}

// SignInWithPassword exchanges credentials for a session.
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, id identity.Identity, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		resp *types.TokenResponse
		err  error
	)
	if id.IsPhone() {
		resp, err = p.client.SignInWithPhonePassword(id.Value, password)
	} else {
		resp, err = p.client.SignInWithEmailPassword(id.Value, password)
	}
	if err != nil {
		return nil, p.translate("token", err)
	}
	session := p.toSession(resp.Session)
	p.hub.Emit(Event{Type: EventSignedIn, UserID: session.User.ID, Session: session})
	return session, nil
}

// SignInWithOTP asks the API to text a passcode. The API does not say whether it created
// the account, so IsNewUser is always false.
func (p *HTTPProvider) SignInWithOTP(ctx context.Context, phone string, createUser bool) (*OTPResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.client.OTP(types.OTPRequest{Phone: phone, CreateUser: createUser}); err != nil {
		return nil, p.translate("otp", err)
	}
	return &OTPResult{Phone: phone}, nil
}

// VerifyOTP exchanges a texted passcode for a session.
func (p *HTTPProvider) VerifyOTP(ctx context.Context, phone, token string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.VerifyForUser(types.VerifyForUserRequest{
		Type:  types.VerificationType("sms"),
		Phone: phone,
		Token: token,
	})
	if err != nil {
		return nil, p.translate("verify", err)
	}
	session := p.toSession(resp.Session)
	p.hub.Emit(Event{Type: EventSignedIn, UserID: session.User.ID, Session: session})
	return session, nil
}

// ResetPasswordForEmail asks the API to mail a recovery link to the project's site URL.
func (p *HTTPProvider) ResetPasswordForEmail(ctx context.Context, email, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.Recover(types.RecoverRequest{Email: email}); err != nil {
		return p.translate("recover", err)
	}
	return nil
}

// GetUser returns the account behind accessToken.
func (p *HTTPProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, p.translate("user", err)
	}
	return fromAuthUser(resp.User), nil
}

// SignOut revokes the session behind accessToken.
func (p *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	user, err := p.GetUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := p.client.WithToken(accessToken).Logout(); err != nil {
		return p.translate("logout", err)
	}
	p.hub.Emit(Event{Type: EventSignedOut, UserID: user.ID})
	return nil
}

// VerifyToken asks the API who owns accessToken.
func (p *HTTPProvider) VerifyToken(ctx context.Context, accessToken string) (*Claims, error) {
	user, err := p.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &Claims{UserID: user.ID, Email: user.Email, Phone: user.Phone}, nil
}

// OnAuthStateChange subscribes fn to auth events seen by this client.
func (p *HTTPProvider) OnAuthStateChange(fn func(Event)) func() {
	return p.hub.Subscribe(fn)
}

// auth-go reports API failures as "response status code <n>: <body>".
var statusPattern = regexp.MustCompile(`(?s)response status code (\d{3})(?::\s*(.*))?`)

type wireError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (e wireError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// translate turns an auth-go error into an *Error carrying the API status and message.
// Transport failures are reported as 502.
func (p *HTTPProvider) translate(op string, err error) error {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		p.logger.Warn("auth provider unreachable", zap.String("op", op), zap.Error(err))
		return &Error{Status: http.StatusBadGateway, Message: err.Error()}
	}

	status, _ := strconv.Atoi(m[1])
	body := strings.TrimSpace(m[2])
	var we wireError
	msg := body
	if json.Unmarshal([]byte(body), &we) == nil {
		msg = we.text()
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	p.logger.Debug("auth provider error", zap.String("op", op), zap.Int("status", status), zap.String("message", msg))
	return &Error{Status: status, Message: msg}
}
