// Package models holds the rows persisted by the service.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newID() string { return uuid.New().String() }

// Base carries the columns shared by every domain record.
type Base struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID when none is set.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = newID()
	}
	return nil
}

// Owner marks a record as belonging to a user.
type Owner struct {
	UserID string `json:"user_id" gorm:"index;type:varchar(36)"`
}

// SetOwner stamps the record with the authenticated user id.
func (o *Owner) SetOwner(userID string) { o.UserID = userID }

// Owned is implemented by records that carry a user id.
type Owned interface {
	SetOwner(userID string)
}
