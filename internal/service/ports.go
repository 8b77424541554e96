package service

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// WalletStore is the wallet half of the ledger. Every mutation is a single
// guarded statement; a failed guard is ErrInsufficientBalance.
type WalletStore interface {
	GetByID(ctx context.Context, id uint) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)
	Create(ctx context.Context, userID uint, currency string) (*models.Wallet, error)
	Reserve(ctx context.Context, walletID uint, amount decimal.Decimal) error
	ReserveEarnings(ctx context.Context, walletID, workerID uint, amount decimal.Decimal) error
	Release(ctx context.Context, walletID uint, source domain.BalanceSource, amount decimal.Decimal) error
	Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error
	Settle(ctx context.Context, walletID uint, source domain.BalanceSource, amount decimal.Decimal) error
}

type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id uint) (*models.Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByWallet(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
	SumByParent(ctx context.Context, parentID uint, statuses []domain.TransactionStatus) (decimal.Decimal, error)
	Transition(ctx context.Context, id uint, from []domain.TransactionStatus, to domain.TransactionStatus, patch map[string]interface{}) error
	Update(ctx context.Context, id uint, patch map[string]interface{}) error
}

type EarningsStore interface {
	TotalEarned(ctx context.Context, workerID uint) (decimal.Decimal, error)
	TotalPaid(ctx context.Context, walletID uint) (decimal.Decimal, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Transactor runs fn in one database transaction; stores called with the
// derived context take part in it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Publish(ctx context.Context, n Notice)
}

// Notice is one event for a user's notification channel.
type Notice struct {
	UserID        uint
	Event         string
	TransactionID uint
	// Key selects the localized body; Args fill it.
	Key     string
	Args    []interface{}
	Payload map[string]interface{}
}
