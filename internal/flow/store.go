package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown or expired flow.
var ErrNotFound = errors.New("flow not found")

type entry struct {
	mu   sync.Mutex
	flow Flow
}

// Store keeps flows in memory and forgets those idle for longer than its TTL.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a new Store. now may be nil.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Store{entries: make(map[string]*entry), ttl: ttl, now: now}
}

func (s *Store) create(f Flow) Flow {
	f.ID = uuid.New().String()
	f.UpdatedAt = s.now()

	s.mu.Lock()
	s.entries[f.ID] = &entry{flow: f}
	s.mu.Unlock()
	return f
}

// Get returns a copy of flow id.
func (s *Store) Get(id string) (Flow, error) {
	var out Flow
	err := s.update(id, func(f *Flow) error {
		out = *f
		return nil
	})
	return out, err
}

// update runs fn on flow id while holding that flow's lock. Changes are kept even when fn
// fails, so an error message can be recorded alongside the failure.
func (s *Store) update(id string, fn func(f *Flow) error) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expired(e) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err := fn(&e.flow)
	e.flow.UpdatedAt = s.now()
	return err
}

// expired must be called with s.mu held.
func (s *Store) expired(e *entry) bool {
	if !e.mu.TryLock() {
		return false
	}
	defer e.mu.Unlock()
	return s.now().Sub(e.flow.UpdatedAt) > s.ttl
}

// Delete drops flow id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of live flows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired flows and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
