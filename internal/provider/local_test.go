package provider_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []provider.Message
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, msg provider.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMessenger) last() provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newLocal(t *testing.T) (*provider.LocalProvider, *recordingMessenger) {
	t.Helper()
	messenger := &recordingMessenger{}
	p := provider.NewLocalProvider(
		repositories.NewMockUserRepository(),
		repositories.NewMockOTPRepository(),
		messenger,
		provider.LocalConfig{JWTSecret: "test_jwt_secret"},
		nil,
	)
	p.GenerateCode = func() (string, error) { return "123456", nil }
	return p, messenger
}

func providerMessage(t *testing.T, err error) string {
	t.Helper()
	var perr *provider.Error
	require.True(t, errors.As(err, &perr), "expected provider error, got %v", err)
	return perr.Message
}

func TestLocalProvider_EmailSignUpAndConfirm(t *testing.T) {
	ctx := context.Background()
	p, messenger := newLocal(t)

	user, err := p.SignUpEmail(ctx, "ana@example.com", "secret1", "http://app.local/auth", nil)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Nil(t, user.ConfirmedAt)

	msg := messenger.last()
	assert.Equal(t, provider.KindEmailConfirmation, msg.Kind)
	assert.Equal(t, "email", msg.Channel)

	_, err = p.SignUpEmail(ctx, "ana@example.com", "secret1", "", nil)
	assert.Equal(t, provider.MsgAlreadyRegistered, providerMessage(t, err))

	_, err = p.SignInWithPassword(ctx, identity.Email("ana@example.com"), "secret1")
	assert.Contains(t, providerMessage(t, err), "not confirmed")

	link, err := url.Parse(msg.Link)
	require.NoError(t, err)
	assert.Equal(t, "app.local", link.Host)
	session, err := p.ConfirmEmail(ctx, link.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.NotNil(t, session.User.ConfirmedAt)

	session, err = p.SignInWithPassword(ctx, identity.Email("ana@example.com"), "secret1")
	require.NoError(t, err)
	claims, err := p.VerifyToken(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)

	_, err = p.SignInWithPassword(ctx, identity.Email("ana@example.com"), "wrong-password")
	assert.Equal(t, provider.MsgInvalidCredentials, providerMessage(t, err))

	_, err = p.SignInWithPassword(ctx, identity.Email("nobody@example.com"), "secret1")
	assert.Equal(t, provider.MsgInvalidCredentials, providerMessage(t, err))
}

func TestLocalProvider_WeakPassword(t *testing.T) {
	p, messenger := newLocal(t)

	_, err := p.SignUpEmail(context.Background(), "ana@example.com", "123", "", nil)
	assert.Equal(t, provider.MsgWeakPassword, providerMessage(t, err))
	_, err = p.SignUpPhone(context.Background(), "+33612345678", "", nil)
	assert.Equal(t, provider.MsgWeakPassword, providerMessage(t, err))
	assert.Zero(t, messenger.count())
}

func TestLocalProvider_PhoneSignUpAndVerify(t *testing.T) {
	ctx := context.Background()
	p, messenger := newLocal(t)

	var events []provider.Event
	unsubscribe := p.OnAuthStateChange(func(e provider.Event) { events = append(events, e) })
	defer unsubscribe()

	user, err := p.SignUpPhone(ctx, "+33612345678", "secret1", nil)
	require.NoError(t, err)
	assert.Equal(t, "+33612345678", user.Phone)

	sms := messenger.last()
	assert.Equal(t, provider.KindOTP, sms.Kind)
	assert.Equal(t, "+33612345678", sms.To)
	assert.Equal(t, "123456", sms.Code)

	_, err = p.SignInWithPassword(ctx, identity.Phone("+33612345678"), "secret1")
	assert.Equal(t, provider.MsgPhoneNotConfirmed, providerMessage(t, err))

	_, err = p.VerifyOTP(ctx, "+33612345678", "000000")
	assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err))

	session, err := p.VerifyOTP(ctx, "+33612345678", "123456")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.NotEmpty(t, session.AccessToken)

	_, err = p.VerifyOTP(ctx, "+33612345678", "123456")
	assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err), "a passcode is single use")

	_, err = p.SignInWithPassword(ctx, identity.Phone("+33612345678"), "secret1")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, provider.EventSignedIn, events[0].Type)
	assert.Equal(t, user.ID, events[0].UserID)
}

func TestLocalProvider_OTPExpires(t *testing.T) {
	ctx := context.Background()
	p, _ := newLocal(t)
	now := time.Now()
	p.Now = func() time.Time { return now }

	_, err := p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	_, err = p.VerifyOTP(ctx, "+33612345678", "123456")
	assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err))
}

func TestLocalProvider_OTPAttemptLimit(t *testing.T) {
	ctx := context.Background()
	p, _ := newLocal(t)

	_, err := p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = p.VerifyOTP(ctx, "+33612345678", "000000")
		assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err))
	}

	_, err = p.VerifyOTP(ctx, "+33612345678", "123456")
	assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err), "the passcode is burned after too many guesses")

	_, err = p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	session, err := p.VerifyOTP(ctx, "+33612345678", "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}

func TestLocalProvider_OTPAttemptLimitConfigured(t *testing.T) {
	ctx := context.Background()
	p := provider.NewLocalProvider(
		repositories.NewMockUserRepository(),
		repositories.NewMockOTPRepository(),
		&recordingMessenger{},
		provider.LocalConfig{JWTSecret: "test_jwt_secret", MaxOTPAttempts: 2},
		nil,
	)
	p.GenerateCode = func() (string, error) { return "123456", nil }

	_, err := p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)

	_, err = p.VerifyOTP(ctx, "+33612345678", "000000")
	require.Error(t, err)
	session, err := p.VerifyOTP(ctx, "+33612345678", "123456")
	require.NoError(t, err, "one wrong guess stays under the limit")
	assert.NotEmpty(t, session.AccessToken)

	_, err = p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = p.VerifyOTP(ctx, "+33612345678", "000000")
		require.Error(t, err)
	}
	_, err = p.VerifyOTP(ctx, "+33612345678", "123456")
	assert.Equal(t, provider.MsgInvalidOTP, providerMessage(t, err))
}

func TestLocalProvider_SignInWithOTP(t *testing.T) {
	ctx := context.Background()
	p, messenger := newLocal(t)

	_, err := p.SignInWithOTP(ctx, "+33612345678", false)
	assert.Equal(t, provider.MsgSignupsDisabled, providerMessage(t, err))
	assert.Zero(t, messenger.count())

	res, err := p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)

	res, err = p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, 2, messenger.count())
}

func TestLocalProvider_PasswordRecovery(t *testing.T) {
	ctx := context.Background()
	p, messenger := newLocal(t)

	require.NoError(t, p.ResetPasswordForEmail(ctx, "ghost@example.com", "http://app.local/reset"))
	assert.Zero(t, messenger.count(), "unknown addresses get no mail")

	_, err := p.SignUpEmail(ctx, "ana@example.com", "secret1", "http://app.local/auth", nil)
	require.NoError(t, err)
	confirm, _ := url.Parse(messenger.last().Link)
	_, err = p.ConfirmEmail(ctx, confirm.Query().Get("token"))
	require.NoError(t, err)

	require.NoError(t, p.ResetPasswordForEmail(ctx, "ana@example.com", "http://app.local/reset"))
	mail := messenger.last()
	assert.Equal(t, provider.KindPasswordRecovery, mail.Kind)
	link, _ := url.Parse(mail.Link)
	recovery := link.Query().Get("token")

	_, err = p.ConfirmEmail(ctx, recovery)
	assert.Error(t, err, "a recovery token does not confirm accounts")

	assert.Error(t, p.UpdatePassword(ctx, recovery, "123"))
	require.NoError(t, p.UpdatePassword(ctx, recovery, "new-secret"))

	_, err = p.SignInWithPassword(ctx, identity.Email("ana@example.com"), "new-secret")
	require.NoError(t, err)
}

func TestLocalProvider_VerifyToken(t *testing.T) {
	ctx := context.Background()
	p, _ := newLocal(t)

	_, err := p.VerifyToken(ctx, "invalid.token.string")
	assert.Equal(t, provider.MsgInvalidJWT, providerMessage(t, err))

	other := provider.NewLocalProvider(repositories.NewMockUserRepository(), repositories.NewMockOTPRepository(),
		&recordingMessenger{}, provider.LocalConfig{JWTSecret: "another_secret"}, nil)
	other.GenerateCode = func() (string, error) { return "654321", nil }
	_, err = other.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	session, err := other.VerifyOTP(ctx, "+33612345678", "654321")
	require.NoError(t, err)

	_, err = p.VerifyToken(ctx, session.AccessToken)
	assert.Error(t, err, "tokens signed with another secret are rejected")
}

func TestLocalProvider_SignOutEmitsEvent(t *testing.T) {
	ctx := context.Background()
	p, _ := newLocal(t)

	_, err := p.SignInWithOTP(ctx, "+33612345678", true)
	require.NoError(t, err)
	session, err := p.VerifyOTP(ctx, "+33612345678", "123456")
	require.NoError(t, err)

	var got provider.Event
	p.OnAuthStateChange(func(e provider.Event) { got = e })
	require.NoError(t, p.SignOut(ctx, session.AccessToken))
	assert.Equal(t, provider.EventSignedOut, got.Type)
	assert.Equal(t, session.User.ID, got.UserID)

	user, err := p.GetUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "+33612345678", user.Phone)
}

func TestLocalProvider_MessengerFailure(t *testing.T) {
	p, messenger := newLocal(t)
	messenger.err = errors.New("broker down")

	_, err := p.SignInWithOTP(context.Background(), "+33612345678", true)
	assert.ErrorContains(t, err, "broker down")
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := provider.NewHub()
	var a, b int
	unsubA := hub.Subscribe(func(provider.Event) { a++ })
	hub.Subscribe(func(provider.Event) { b++ })

	hub.Emit(provider.Event{Type: provider.EventSignedIn})
	unsubA()
	unsubA()
	hub.Emit(provider.Event{Type: provider.EventSignedOut})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}
