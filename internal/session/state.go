// Package session holds the per-user application state: the current auth session, the
// chosen language and a short log of errors shown to the user.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
)

// MaxErrors bounds the error log of a State.
const MaxErrors = 50

// Locale is an interface language.
type Locale string

const (
	LocaleFR Locale = "fr"
	LocaleEN Locale = "en"
	LocaleAR Locale = "ar"

	DefaultLocale = LocaleFR
)

// ErrUnsupportedLocale is returned by SetLocale for languages the app does not ship.
var ErrUnsupportedLocale = errors.New("unsupported locale")

// ParseLocale validates s.
func ParseLocale(s string) (Locale, error) {
	switch l := Locale(s); l {
	case LocaleFR, LocaleEN, LocaleAR:
		return l, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnsupportedLocale)
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
}

// Snapshot is a point-in-time copy of a State, handed to listeners.
type Snapshot struct {
	UserID        string            `json:"user_id"`
	Initialized   bool              `json:"initialized"`
	Authenticated bool              `json:"authenticated"`
	Locale        Locale            `json:"locale"`
	ErrorCount    int               `json:"error_count"`
	Session       *provider.Session `json:"-"`
}

// State is the application state of one user.
type State struct {
	mu          sync.RWMutex
	userID      string
	initialized bool
	session     *provider.Session
	locale      Locale
	errors      []ErrorEntry

	listenersMu sync.Mutex
	nextID      int
	listeners   map[int]func(Snapshot)

	now func() time.Time
}

// NewState creates the state of userID.
func NewState(userID string) *State {
	return &State{userID: userID, locale: DefaultLocale, listeners: make(map[int]func(Snapshot)), now: time.Now}
}

// Init marks the state ready; calling it again has no effect.
func (s *State) Init() {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()
	s.notify()
}

// Initialized reports whether Init ran.
func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SetSession replaces the current session.
func (s *State) SetSession(sess *provider.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.notify()
}

// Session returns the current session, nil when signed out.
func (s *State) Session() *provider.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SetLocale changes the language.
func (s *State) SetLocale(l Locale) error {
	if _, err := ParseLocale(string(l)); err != nil {
		return err
	}
	s.mu.Lock()
	s.locale = l
	s.mu.Unlock()
	s.notify()
	return nil
}

// Locale returns the language.
func (s *State) Locale() Locale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// RecordError appends to the error log, dropping the oldest entries beyond MaxErrors.
func (s *State) RecordError(message, path string) {
	s.mu.Lock()
	s.errors = append(s.errors, ErrorEntry{At: s.now(), Message: message, Path: path})
	if over := len(s.errors) - MaxErrors; over > 0 {
		s.errors = append(s.errors[:0:0], s.errors[over:]...)
	}
	s.mu.Unlock()
	s.notify()
}

// Errors returns the error log, oldest first.
func (s *State) Errors() []ErrorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ErrorEntry, len(s.errors))
	copy(out, s.errors)
	return out
}

// Clear forgets the session and the error log; the language is kept.
func (s *State) Clear() {
	s.mu.Lock()
	s.session = nil
	s.errors = nil
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		UserID:        s.userID,
		Initialized:   s.initialized,
		Authenticated: s.session != nil,
		Locale:        s.locale,
		ErrorCount:    len(s.errors),
		Session:       s.session,
	}
}

// Subscribe calls fn with a snapshot after every change. The returned function removes fn.
func (s *State) Subscribe(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *State) notify() {
	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *State) apply(e provider.Event) {
	switch e.Type {
	case provider.EventSignedOut:
		s.Clear()
	case provider.EventSignedIn, provider.EventUserUpdated, provider.EventPasswordRecovery:
		if e.Session != nil {
			s.SetSession(e.Session)
		}
	}
}
