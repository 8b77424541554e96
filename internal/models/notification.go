package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is a persisted transaction event for a user's inbox.
type Notification struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Event         string         `gorm:"size:50;not null;index" json:"event"`
	TransactionID *uint          `gorm:"index" json:"transaction_id,omitempty"`
	Title         string         `gorm:"size:255" json:"title"`
	Body          string         `gorm:"type:text" json:"body"`
	Data          string         `gorm:"type:text" json:"data"` // JSON payload
	ReadAt        *time.Time     `json:"read_at"`
	CreatedAt     time.Time      `json:"created_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
