package models

import "time"

// Profile is the public face of a user, keyed by the auth user id.
type Profile struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username  string    `json:"username" gorm:"type:varchar(100)" validate:"required,min=2,max=100"`
	Phone     string    `json:"phone" gorm:"type:varchar(32)" validate:"omitempty,e164"`
	Location  string    `json:"location" gorm:"type:varchar(255)" validate:"omitempty,max=255"`
	Email     *string   `json:"email,omitempty" gorm:"type:varchar(255)" validate:"omitempty,email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name for Profile.
func (Profile) TableName() string { return "profiles" }
