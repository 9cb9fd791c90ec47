package session

import (
	"sync"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry holds one State per user. States idle for longer than the TTL are forgotten.
type Registry struct {
	mu     sync.Mutex
	states *expirable.LRU[string, *State]
}

// NewRegistry creates a new Registry.
func NewRegistry(size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{states: expirable.NewLRU[string, *State](size, nil, ttl)}
}

// Get returns the state of userID, creating and initializing it on first use.
func (r *Registry) Get(userID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states.Get(userID); ok {
		return s
	}
	s := NewState(userID)
	s.Init()
	r.states.Add(userID, s)
	return s
}

// Peek returns the state of userID without creating it.
func (r *Registry) Peek(userID string) (*State, bool) {
	return r.states.Peek(userID)
}

// Bind routes the provider's auth events to the states of the users they concern.
func (r *Registry) Bind(p provider.Provider) (unbind func()) {
	return p.OnAuthStateChange(func(e provider.Event) {
		if e.UserID == "" {
			return
		}
		if e.Type == provider.EventSignedOut {
			if s, ok := r.Peek(e.UserID); ok {
				s.apply(e)
			}
			return
		}
		r.Get(e.UserID).apply(e)
	})
}
