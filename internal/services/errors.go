package services

import (
	"errors"
	"strings"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
)

// ErrValidation marks input rejected before any network call.
var ErrValidation = errors.New("validation error")

// User-facing messages.
const (
	MsgInvalidIdentity    = "Veuillez saisir un email ou un numéro de téléphone valide"
	MsgInvalidEmail       = "Veuillez saisir une adresse email valide"
	MsgInvalidPhone       = "Veuillez saisir un numéro de téléphone valide"
	MsgInvalidCode        = "Le code doit contenir 6 chiffres"
	MsgPasswordRequired   = "Le mot de passe est requis"
	MsgInvalidCredentials = "Email, téléphone ou mot de passe incorrect"
	MsgNotConfirmed       = "Votre compte n'est pas encore confirmé"
	MsgAlreadyRegistered  = "Un compte existe déjà avec cet identifiant"
	MsgInvalidOTP         = "Code invalide ou expiré"
	MsgWeakPassword       = "Le mot de passe doit contenir au moins 6 caractères"
	MsgUnknownPhone       = "Aucun compte n'est associé à ce numéro"
	MsgRateLimited        = "Trop de tentatives. Veuillez réessayer plus tard"
	MsgSessionExpired     = "Votre session a expiré. Veuillez vous reconnecter"
	MsgInvalidData        = "Données invalides"
	MsgNotFound           = "Élément introuvable"
	MsgUnexpected         = "Une erreur est survenue. Veuillez réessayer"
)

// translations is scanned in order; the first needle found in the lowercased provider
// message wins.
var translations = []struct {
	needle  string
	message string
}{
	{"invalid login credentials", MsgInvalidCredentials},
	{"not confirmed", MsgNotConfirmed},
	{"already registered", MsgAlreadyRegistered},
	{"already exists", MsgAlreadyRegistered},
	{"duplicate key", MsgAlreadyRegistered},
	{"token has expired or is invalid", MsgInvalidOTP},
	{"otp has expired", MsgInvalidOTP},
	{"password should be at least", MsgWeakPassword},
	{"signups not allowed", MsgUnknownPhone},
	{"rate limit", MsgRateLimited},
	{"for security purposes", MsgRateLimited},
	{"invalid phone", MsgInvalidPhone},
	{"unable to validate email", MsgInvalidEmail},
	{"invalid jwt", MsgSessionExpired},
	{"not found", MsgNotFound},
}

// TranslateError maps a provider or storage failure to a French message for the user.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}

	text := err.Error()
	var perr *provider.Error
	if errors.As(err, &perr) {
		text = perr.Message
	}
	text = strings.ToLower(text)
	for _, t := range translations {
		if strings.Contains(text, t.needle) {
			return t.message
		}
	}
	return MsgUnexpected
}

// UserError carries the message shown to the user and the underlying cause.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

func validationError(message string) error {
	return &UserError{Message: message, Err: ErrValidation}
}

func userError(err error) error {
	return &UserError{Message: TranslateError(err), Err: err}
}
