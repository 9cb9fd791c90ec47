package provider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	otpDigits         = 6

	purposeAccess       = "access"
	purposeConfirmation = "email_confirmation"
	purposeRecovery     = "password_recovery"
)

// LocalConfig tunes the in-process provider.
type LocalConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	OTPTTL          time.Duration
	ConfirmationTTL time.Duration
	RecoveryTTL     time.Duration
	// MaxOTPAttempts is the number of wrong guesses after which a passcode is burned.
	MaxOTPAttempts  int
}

// LocalProvider runs the auth engine in-process: bcrypt hashing, HS256 tokens, passcode
// challenges, and SMS/email dispatch through a Messenger.
type LocalProvider struct {
	users     repositories.UserRepository
	otps      repositories.OTPRepository
	messenger Messenger
	hub       *Hub
	logger    *zap.Logger

	jwtSecret       []byte
	tokenTTL        time.Duration
	otpTTL          time.Duration
	confirmationTTL time.Duration
	recoveryTTL     time.Duration
	maxOTPAttempts  int

	// Now and GenerateCode are replaceable for tests.
	Now          func() time.Time
	GenerateCode func() (string, error)
}

var (
	_ Provider  = (*LocalProvider)(nil)
	_ Recoverer = (*LocalProvider)(nil)
)

// NewLocalProvider creates a new LocalProvider.
func NewLocalProvider(users repositories.UserRepository, otps repositories.OTPRepository, messenger Messenger, cfg LocalConfig, logger *zap.Logger) *LocalProvider {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	if cfg.RecoveryTTL <= 0 {
		cfg.RecoveryTTL = time.Hour
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{
		users:           users,
		otps:            otps,
		messenger:       messenger,
		hub:             NewHub(),
		logger:          logger,
		jwtSecret:       []byte(cfg.JWTSecret),
		tokenTTL:        cfg.TokenTTL,
		otpTTL:          cfg.OTPTTL,
		confirmationTTL: cfg.ConfirmationTTL,
		recoveryTTL:     cfg.RecoveryTTL,
		maxOTPAttempts:  cfg.MaxOTPAttempts,
		Now:             time.Now,
		GenerateCode:    randomCode,
	}
}

// SignUpEmail creates an unconfirmed account and sends a confirmation link to redirectTo.
func (p *LocalProvider) SignUpEmail(ctx context.Context, email, password, redirectTo string, _ map[string]any) (*User, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	user, err := p.createUser(ctx, &models.User{Email: &email}, password)
	if err != nil {
		return nil, err
	}

	token, err := p.signToken(user, purposeConfirmation, p.confirmationTTL)
	if err != nil {
		return nil, err
	}
	msg := Message{Channel: "email", To: email, Kind: KindEmailConfirmation, Link: withToken(redirectTo, token)}
	if err := p.messenger.Send(ctx, msg); err != nil {
		return nil, err
	}
	return toUser(user), nil
}

// SignUpPhone creates an unconfirmed account and texts it a passcode.
func (p *LocalProvider) SignUpPhone(ctx context.Context, phone, password string, _ map[string]any) (*User, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	user, err := p.createUser(ctx, &models.User{Phone: &phone}, password)
	if err != nil {
		return nil, err
	}
	if err := p.sendOTP(ctx, phone); err != nil {
		return nil, err
	}
	return toUser(user), nil
}

func (p *LocalProvider) createUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashedPassword)
	}

	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, &Error{Status: http.StatusUnprocessableEntity, Message: MsgAlreadyRegistered}
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	p.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// SignInWithPassword checks the password of a confirmed account and issues a session.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, id identity.Identity, password string) (*Session, error) {
	user, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Do not reveal whether the account exists.
			return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidCredentials}
		}
		return nil, err
	}

	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidCredentials}
	}
	if !user.Confirmed() {
		msg := MsgEmailNotConfirmed
		if id.IsPhone() {
			msg = MsgPhoneNotConfirmed
		}
		return nil, &Error{Status: http.StatusBadRequest, Message: msg}
	}
	return p.startSession(user)
}

func (p *LocalProvider) lookup(ctx context.Context, id identity.Identity) (*models.User, error) {
	if id.IsPhone() {
		return p.users.GetByPhone(ctx, id.Value)
	}
	return p.users.GetByEmail(ctx, id.Value)
}

// SignInWithOTP texts a passcode to phone, creating the account first when createUser is
// set and none exists.
func (p *LocalProvider) SignInWithOTP(ctx context.Context, phone string, createUser bool) (*OTPResult, error) {
	result := &OTPResult{Phone: phone}

	_, err := p.users.GetByPhone(ctx, phone)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		if !createUser {
			return nil, &Error{Status: http.StatusUnprocessableEntity, Message: MsgSignupsDisabled}
		}
		if _, err := p.createUser(ctx, &models.User{Phone: &phone}, ""); err != nil {
			return nil, err
		}
		result.IsNewUser = true
	case err != nil:
		return nil, err
	}

	if err := p.sendOTP(ctx, phone); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *LocalProvider) sendOTP(ctx context.Context, phone string) error {
	code, err := p.GenerateCode()
	if err != nil {
		return fmt.Errorf("failed to generate passcode: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("failed to hash passcode: %w", err)
	}

	now := p.Now()
	challenge := &models.OTPChallenge{
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(p.otpTTL),
		CreatedAt: now,
	}
	if err := p.otps.Create(ctx, challenge); err != nil {
		return err
	}
	return p.messenger.Send(ctx, Message{Channel: "sms", To: phone, Kind: KindOTP, Code: code})
}

// VerifyOTP consumes the active passcode of phone, confirms the account and issues a session.
func (p *LocalProvider) VerifyOTP(ctx context.Context, phone, token string) (*Session, error) {
	invalid := &Error{Status: http.StatusForbidden, Message: MsgInvalidOTP}
	now := p.Now()

	challenge, err := p.otps.Active(ctx, phone, now)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if challenge.Attempts >= p.maxOTPAttempts {
		return nil, p.burnOTP(ctx, challenge.ID, now, invalid)
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(token)) != nil {
		attempts, err := p.otps.IncrementAttempts(ctx, challenge.ID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		if attempts >= p.maxOTPAttempts {
			p.logger.Warn("passcode attempts exhausted", zap.String("challenge_id", challenge.ID))
			return nil, p.burnOTP(ctx, challenge.ID, now, invalid)
		}
		return nil, invalid
	}
	if err := p.otps.Consume(ctx, challenge.ID, now); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}

	user, err := p.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if err := p.users.Confirm(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if user.ConfirmedAt == nil {
		user.ConfirmedAt = &now
	}
	return p.startSession(user)
}

// burnOTP consumes a challenge that ran out of attempts and returns invalid.
func (p *LocalProvider) burnOTP(ctx context.Context, id string, now time.Time, invalid error) error {
	if err := p.otps.Consume(ctx, id, now); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return invalid
}

// ResetPasswordForEmail mails a recovery link. Unknown addresses succeed silently.
func (p *LocalProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			p.logger.Debug("password recovery for unknown email")
			return nil
		}
		return err
	}

	token, err := p.signToken(user, purposeRecovery, p.recoveryTTL)
	if err != nil {
		return err
	}
	return p.messenger.Send(ctx, Message{Channel: "email", To: email, Kind: KindPasswordRecovery, Link: withToken(redirectTo, token)})
}

// ConfirmEmail confirms the account named by a confirmation token and signs it in.
func (p *LocalProvider) ConfirmEmail(ctx context.Context, token string) (*Session, error) {
	claims, err := p.parseToken(token, purposeConfirmation)
	if err != nil {
		return nil, &Error{Status: http.StatusForbidden, Message: MsgInvalidOTP}
	}
	user, err := p.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	now := p.Now()
	if err := p.users.Confirm(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if user.ConfirmedAt == nil {
		user.ConfirmedAt = &now
	}
	return p.startSession(user)
}

// UpdatePassword sets a new password using a recovery token.
func (p *LocalProvider) UpdatePassword(ctx context.Context, recoveryToken, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	claims, err := p.parseToken(recoveryToken, purposeRecovery)
	if err != nil {
		return &Error{Status: http.StatusForbidden, Message: MsgInvalidOTP}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := p.users.UpdatePassword(ctx, claims.UserID, string(hash)); err != nil {
		return err
	}
	p.hub.Emit(Event{Type: EventPasswordRecovery, UserID: claims.UserID})
	return nil
}

// GetUser returns the account behind an access token.
func (p *LocalProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	claims, err := p.VerifyToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := p.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return toUser(user), nil
}

// SignOut announces the end of the session. Access tokens stay valid until they expire.
func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.VerifyToken(ctx, accessToken)
	if err != nil {
		return err
	}
	p.hub.Emit(Event{Type: EventSignedOut, UserID: claims.UserID})
	return nil
}

// VerifyToken validates an access token.
func (p *LocalProvider) VerifyToken(_ context.Context, accessToken string) (*Claims, error) {
	claims, err := p.parseToken(accessToken, purposeAccess)
	if err != nil {
		return nil, &Error{Status: http.StatusUnauthorized, Message: MsgInvalidJWT}
	}
	return claims, nil
}

// OnAuthStateChange subscribes fn to auth events.
func (p *LocalProvider) OnAuthStateChange(fn func(Event)) func() {
	return p.hub.Subscribe(fn)
}

func (p *LocalProvider) startSession(user *models.User) (*Session, error) {
	token, err := p.signToken(user, purposeAccess, p.tokenTTL)
	if err != nil {
		return nil, err
	}
	session := &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   p.Now().Add(p.tokenTTL),
		User:        *toUser(user),
	}
	p.hub.Emit(Event{Type: EventSignedIn, UserID: user.ID, Session: session})
	return session, nil
}

func (p *LocalProvider) signToken(user *models.User, purpose string, ttl time.Duration) (string, error) {
	now := p.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"purpose": purpose,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if user.Email != nil {
		claims["email"] = *user.Email
	}
	if user.Phone != nil {
		claims["phone"] = *user.Phone
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

func (p *LocalProvider) parseToken(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if got, _ := mapClaims["purpose"].(string); got != purpose {
		return nil, fmt.Errorf("invalid token: purpose %q", got)
	}
	userID, _ := mapClaims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("invalid token: missing user_id")
	}
	email, _ := mapClaims["email"].(string)
	phone, _ := mapClaims["phone"].(string)
	return &Claims{UserID: userID, Email: email, Phone: phone}, nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return &Error{Status: http.StatusUnprocessableEntity, Message: MsgWeakPassword}
	}
	return nil
}

func toUser(u *models.User) *User {
	user := &User{ID: u.ID, ConfirmedAt: u.ConfirmedAt, CreatedAt: u.CreatedAt}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Phone != nil {
		user.Phone = *u.Phone
	}
	return user
}

func withToken(redirectTo, token string) string {
	u, err := url.Parse(redirectTo)
	if err != nil || redirectTo == "" {
		return "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func randomCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
