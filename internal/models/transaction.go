package models

import (
	"encoding/json"
	"time"

	"marketplace/internal/domain"

	"github.com/shopspring/decimal"
)

// Transaction is one ledger-affecting attempt tied to a payment provider call.
type Transaction struct {
	ID            uint                     `gorm:"primaryKey" json:"id"`
	Reference     string                   `gorm:"size:64;uniqueIndex;not null" json:"reference"` // our merchant order id
	WalletID      uint                     `gorm:"not null;index" json:"wallet_id"`
	ParentID      *uint                    `gorm:"index" json:"parent_id,omitempty"` // refunded deposit
	Kind          domain.TransactionKind   `gorm:"size:20;not null;index" json:"kind"`
	BalanceSource domain.BalanceSource     `gorm:"size:20;not null;default:'wallet'" json:"balance_source"`
	Provider      string                   `gorm:"size:30;not null" json:"provider"`
	Amount        decimal.Decimal          `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency      string                   `gorm:"size:3;default:'EGP'" json:"currency"`
	Status        domain.TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	ExternalRef   *string                  `gorm:"size:128;uniqueIndex" json:"external_ref"`
	Metadata      string                   `gorm:"type:text" json:"-"` // JSON
	BankDetails   string                   `gorm:"type:text" json:"-"` // JSON
	FailureReason string                   `gorm:"size:512" json:"failure_reason,omitempty"`
	CompletedAt   *time.Time               `json:"completed_at"`
	CreatedAt     time.Time                `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`

	Wallet Wallet `gorm:"foreignKey:WalletID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Meta decodes the metadata bag. A malformed bag reads as empty.
func (t *Transaction) Meta() map[string]string {
	out := map[string]string{}
	if t.Metadata != "" {
		_ = json.Unmarshal([]byte(t.Metadata), &out)
	}
	return out
}

// MergeMeta adds keys to the metadata bag, overwriting existing ones.
func (t *Transaction) MergeMeta(kv map[string]string) {
	m := t.Meta()
	for k, v := range kv {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	t.Metadata = string(b)
}

func (t *Transaction) ExternalRefValue() string {
	if t.ExternalRef == nil {
		return ""
	}
	return *t.ExternalRef
}
