package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"

	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{db: db}
}

// Create creates a new user in the database.
func (r *GORMUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("user: %w", ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *GORMUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by their email.
func (r *GORMUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

// GetByPhone retrieves a user by their E.164 phone number.
func (r *GORMUserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.first(ctx, "phone = ?", phone)
}

// Confirm marks the account as verified. Confirming twice keeps the first timestamp.
func (r *GORMUserRepository) Confirm(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND confirmed_at IS NULL", id).
		Update("confirmed_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to confirm user %s: %w", id, res.Error)
	}
	return nil
}

// UpdatePassword replaces the password hash of the user.
func (r *GORMUserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password of user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GORMUserRepository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %v: %w", arg, err)
	}
	return &user, nil
}

// GORMOTPRepository is a GORM implementation of OTPRepository.
type GORMOTPRepository struct {
	db *gorm.DB
}

// NewGORMOTPRepository creates a new instance of GORMOTPRepository.
func NewGORMOTPRepository(db *gorm.DB) *GORMOTPRepository {
	return &GORMOTPRepository{db: db}
}

// Create stores a new challenge.
func (r *GORMOTPRepository) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	if err := r.db.WithContext(ctx).Create(challenge).Error; err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}
	return nil
}

// Active returns the newest usable challenge for phone.
func (r *GORMOTPRepository) Active(ctx context.Context, phone string, now time.Time) (*models.OTPChallenge, error) {
	var challenge models.OTPChallenge
	err := r.db.WithContext(ctx).
		Where("phone = ? AND consumed_at IS NULL AND expires_at > ?", phone, now).
		Order("created_at desc").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("otp challenge for %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get otp challenge for %s: %w", phone, err)
	}
	return &challenge, nil
}

// Consume marks the challenge as used.
func (r *GORMOTPRepository) Consume(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.OTPChallenge{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to consume otp challenge %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("otp challenge %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementAttempts bumps the failed-guess counter of a challenge.
func (r *GORMOTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.OTPChallenge{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to count otp attempt %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("otp challenge %s: %w", id, ErrNotFound)
	}

	var challenge models.OTPChallenge
	if err := db.Select("attempts").Where("id = ?", id).First(&challenge).Error; err != nil {
		return 0, fmt.Errorf("failed to get otp challenge %s: %w", id, err)
	}
	return challenge.Attempts, nil
}
