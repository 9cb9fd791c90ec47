package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account held by the in-process auth provider.
// Email and Phone are nullable so that unique indexes ignore the missing one.
type User struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email       *string    `json:"email,omitempty" gorm:"uniqueIndex;type:varchar(255)"`
	Phone       *string    `json:"phone,omitempty" gorm:"uniqueIndex;type:varchar(32)"`
	Password    string     `json:"-" gorm:"type:varchar(255)"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName overrides the table name for User.
func (User) TableName() string { return "auth_users" }

// Confirmed reports whether the email or phone of the account has been verified.
func (u *User) Confirmed() bool { return u.ConfirmedAt != nil }

// BeforeCreate assigns an ID when none is set.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return nil
}

// OTPChallenge is a pending one-time passcode sent to a phone number.
type OTPChallenge struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)"`
	Phone      string     `gorm:"index;type:varchar(32);not null"`
	CodeHash   string     `gorm:"type:varchar(255);not null"`
	ExpiresAt  time.Time  `gorm:"not null"`
	Attempts   int        `gorm:"not null;default:0"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// TableName overrides the table name for OTPChallenge.
func (OTPChallenge) TableName() string { return "auth_otp_challenges" }

// BeforeCreate assigns an ID when none is set.
func (c *OTPChallenge) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}
