package models

import (
	"time"

	"marketplace/internal/domain"

	"gorm.io/gorm"
)

// User is owned by the identity service; this slice only reads role and contact data
// and keeps the device token and notification language.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName string         `gorm:"size:100" json:"first_name"`
	LastName  string         `gorm:"size:100" json:"last_name"`
	Phone     string         `gorm:"size:32" json:"phone"`
	Role      string         `gorm:"size:20;not null;index" json:"role"` // CUSTOMER | WORKER | DRIVER | STORE | ADMIN
	FCMToken  string         `gorm:"size:512" json:"-"`
	Language  string         `gorm:"size:16" json:"language"` // BCP 47 tag for notifications, e.g. ar
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsWorker() bool { return u.Role == domain.RoleWorker }
func (u *User) IsAdmin() bool  { return u.Role == domain.RoleAdmin }

func (User) TableName() string {
	return "users"
}
