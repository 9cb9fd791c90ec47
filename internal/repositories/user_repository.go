package repositories

import (
	"context"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
)

// UserRepository defines the interface for auth account data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	Confirm(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hash string) error
}

// OTPRepository stores one-time passcode challenges.
type OTPRepository interface {
	Create(ctx context.Context, challenge *models.OTPChallenge) error
	// Active returns the newest unconsumed, unexpired challenge for phone.
	Active(ctx context.Context, phone string, now time.Time) (*models.OTPChallenge, error)
	Consume(ctx context.Context, id string, at time.Time) error
	// IncrementAttempts records a failed guess and returns the new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
}
