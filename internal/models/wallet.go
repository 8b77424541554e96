package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet is a user's stored-value balance. Reserved holds funds of in-flight
// withdrawals and payouts; Balance only moves when a transaction completes.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Reserved  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"reserved"`
	// EarningsReserved holds in-flight payouts drawn from the worker earnings ledger.
	EarningsReserved decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"earnings_reserved"`
	Currency  string          `gorm:"size:3;default:'EGP'" json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Available is what a withdrawal may still claim.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}

func (Wallet) TableName() string {
	return "wallets"
}
