package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkerEarning is one credited job for a worker; payouts are bounded by the sum of these.
type WorkerEarning struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	WorkerID  uint            `gorm:"not null;index" json:"worker_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	OrderRef  string          `gorm:"size:64" json:"order_ref"`
	CreatedAt time.Time       `json:"created_at"`

	Worker User `gorm:"foreignKey:WorkerID" json:"-"`
}

func (WorkerEarning) TableName() string {
	return "worker_earnings"
}
