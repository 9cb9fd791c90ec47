package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"

	"github.com/google/uuid"
)

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]models.User),
	}
}

// Create adds a new user, rejecting a duplicate email or phone.
func (r *MockUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if sameValue(existing.Email, user.Email) || sameValue(existing.Phone, user.Phone) {
			return fmt.Errorf("user: %w", ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

// GetByID returns a user by its ID.
func (r *MockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

// GetByEmail returns a user by its email.
func (r *MockUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email != nil && *u.Email == email }, email)
}

// GetByPhone returns a user by its phone.
func (r *MockUserRepository) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Phone != nil && *u.Phone == phone }, phone)
}

// Confirm marks the user as verified.
func (r *MockUserRepository) Confirm(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if user.ConfirmedAt == nil {
		user.ConfirmedAt = &at
		r.users[id] = user
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *MockUserRepository) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user.Password = hash
	r.users[id] = user
	return nil
}

func (r *MockUserRepository) find(match func(models.User) bool, key string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			u := user
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", key, ErrNotFound)
}

func sameValue(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// MockOTPRepository is an in-memory implementation of OTPRepository.
type MockOTPRepository struct {
	challenges map[string]models.OTPChallenge
	seq        int
	order      map[string]int
	mu         sync.RWMutex
}

// NewMockOTPRepository creates a new instance of MockOTPRepository.
func NewMockOTPRepository() *MockOTPRepository {
	return &MockOTPRepository{
		challenges: make(map[string]models.OTPChallenge),
		order:      make(map[string]int),
	}
}

// Create stores a challenge.
func (r *MockOTPRepository) Create(_ context.Context, challenge *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if challenge.ID == "" {
		challenge.ID = uuid.New().String()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	r.seq++
	r.order[challenge.ID] = r.seq
	r.challenges[challenge.ID] = *challenge
	return nil
}

// Active returns the newest usable challenge for phone.
func (r *MockOTPRepository) Active(_ context.Context, phone string, now time.Time) (*models.OTPChallenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []models.OTPChallenge
	for _, c := range r.challenges {
		if c.Phone == phone && c.ConsumedAt == nil && c.ExpiresAt.After(now) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("otp challenge for %s: %w", phone, ErrNotFound)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return r.order[candidates[i].ID] > r.order[candidates[j].ID]
	})
	return &candidates[0], nil
}

// Consume marks the challenge as used.
func (r *MockOTPRepository) Consume(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok || c.ConsumedAt != nil {
		return fmt.Errorf("otp challenge %s: %w", id, ErrNotFound)
	}
	c.ConsumedAt = &at
	r.challenges[id] = c
	return nil
}

// IncrementAttempts bumps the failed-guess counter of a challenge.
func (r *MockOTPRepository) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return 0, fmt.Errorf("otp challenge %s: %w", id, ErrNotFound)
	}
	c.Attempts++
	r.challenges[id] = c
	return c.Attempts, nil
}
