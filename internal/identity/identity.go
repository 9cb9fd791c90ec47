// Package identity decides whether a free-text identifier is an email address or a phone
// number and normalizes phone numbers to E.164.
//
// Grammar:
//   - email: ^[^\s@]+@[^\s@]+\.[^\s@]+$ on the trimmed input.
//   - phone: whitespace removed, a leading '+' or '0' followed by 8 to 14 digits. A local
//     number (leading '0') gets the default calling code in place of the zero. The result
//     must be a possible number for its country before Parse accepts it.
package identity

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultCallingCode replaces the leading zero of local numbers.
const DefaultCallingCode = "+33"

var (
	// ErrInvalidIdentity is returned when the input is neither an email nor a phone number.
	ErrInvalidIdentity = errors.New("identity is neither a valid email nor a valid phone number")

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[+0][0-9]{8,14}$`)
)

// Kind tags an Identity.
type Kind int

const (
	KindEmail Kind = iota + 1
	KindPhone
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// Identity is either an email address or an E.164 phone number.
type Identity struct {
	Kind  Kind
	Value string
}

// Email builds an email identity without validating it.
func Email(address string) Identity {
	return Identity{Kind: KindEmail, Value: strings.TrimSpace(address)}
}

// Phone builds a phone identity from an already normalized number.
func Phone(e164 string) Identity {
	return Identity{Kind: KindPhone, Value: e164}
}

func (i Identity) IsEmail() bool { return i.Kind == KindEmail }
func (i Identity) IsPhone() bool { return i.Kind == KindPhone }
func (i Identity) String() string { return i.Value }

// IsEmail reports whether s, once trimmed, looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// IsPhone reports whether s, once whitespace is removed, looks like a phone number.
func IsPhone(s string) bool {
	return phonePattern.MatchString(stripSpaces(s))
}

// NormalizePhone converts s to an international form using DefaultCallingCode.
func NormalizePhone(s string) string {
	return NormalizePhoneWith(s, DefaultCallingCode)
}

// NormalizePhoneWith converts s to an international form. Numbers starting with '0' get
// callingCode instead of the zero, numbers starting with '+' are returned as is and
// anything else is prefixed with '+'.
func NormalizePhoneWith(s, callingCode string) string {
	cleaned := stripSpaces(s)
	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "0"):
		if !strings.HasPrefix(callingCode, "+") {
			callingCode = "+" + callingCode
		}
		return callingCode + cleaned[1:]
	default:
		return "+" + cleaned
	}
}

// Parser turns free text into an Identity.
type Parser struct {
	callingCode string
}

// NewParser returns a Parser that expands local numbers with callingCode.
// An empty callingCode falls back to DefaultCallingCode.
func NewParser(callingCode string) *Parser {
	if strings.TrimSpace(callingCode) == "" {
		callingCode = DefaultCallingCode
	}
	return &Parser{callingCode: callingCode}
}

// CallingCode returns the code used for local numbers.
func (p *Parser) CallingCode() string { return p.callingCode }

// Normalize applies NormalizePhoneWith with the parser's calling code.
func (p *Parser) Normalize(s string) string {
	return NormalizePhoneWith(s, p.callingCode)
}

// Parse classifies s. Emails are checked first, so a string containing '@' is never a phone.
func (p *Parser) Parse(s string) (Identity, error) {
	trimmed := strings.TrimSpace(s)
	if IsEmail(trimmed) {
		return Email(trimmed), nil
	}
	if strings.Contains(trimmed, "@") || !IsPhone(trimmed) {
		return Identity{}, ErrInvalidIdentity
	}

	e164, err := toE164(p.Normalize(trimmed))
	if err != nil {
		return Identity{}, err
	}
	return Phone(e164), nil
}

// Parse classifies s with DefaultCallingCode.
func Parse(s string) (Identity, error) {
	return NewParser(DefaultCallingCode).Parse(s)
}

func toE164(international string) (string, error) {
	num, err := phonenumbers.Parse(international, "")
	if err != nil {
		return "", ErrInvalidIdentity
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidIdentity
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
