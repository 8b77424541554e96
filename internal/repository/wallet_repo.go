package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// amountArg binds a decimal parameter with numeric affinity so comparisons
// against computed columns stay numeric on every dialect.
const amountArg = "CAST(? AS DECIMAL(20,2))"

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := conn(ctx, r.db).First(&w, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := conn(ctx, r.db).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// Create opens a wallet for userID. A second wallet for the same user is refused.
func (r *WalletRepository) Create(ctx context.Context, userID uint, currency string) (*models.Wallet, error) {
	if _, err := r.GetByUserID(ctx, userID); err == nil {
		return nil, domain.ErrWalletExists
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	w := &models.Wallet{
		UserID:           userID,
		Balance:          decimal.Zero,
		Reserved:         decimal.Zero,
		EarningsReserved: decimal.Zero,
		Currency:         currency,
	}
	if err := conn(ctx, r.db).Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrWalletExists
		}
		return nil, err
	}
	return w, nil
}

// Reserve holds amount against the available balance (balance - reserved).
func (r *WalletRepository) Reserve(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	res := conn(ctx, r.db).Model(&models.Wallet{}).
		Where("id = ? AND balance - reserved >= "+amountArg, walletID, amount).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved + "+amountArg, amount),
			"updated_at": time.Now(),
		})
	return r.guarded(ctx, walletID, res)
}

// ReserveEarnings holds amount against the worker's unpaid earnings:
// sum(earnings) - sum(completed earnings payouts) - already reserved.
func (r *WalletRepository) ReserveEarnings(ctx context.Context, walletID, workerID uint, amount decimal.Decimal) error {
	db := conn(ctx, r.db)
	earned := db.Session(&gorm.Session{NewDB: true}).Model(&models.WorkerEarning{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("worker_id = ?", workerID)
	paid := db.Session(&gorm.Session{NewDB: true}).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("wallet_id = ? AND kind = ? AND balance_source = ? AND status = ?",
			walletID, domain.KindPayout, domain.SourceEarnings, domain.StatusCompleted)
	res := db.Model(&models.Wallet{}).
		Where("id = ? AND earnings_reserved + "+amountArg+" <= (?) - (?)", walletID, amount, earned, paid).
		Updates(map[string]interface{}{
			"earnings_reserved": gorm.Expr("earnings_reserved + "+amountArg, amount),
			"updated_at":        time.Now(),
		})
	return r.guarded(ctx, walletID, res)
}

// Release drops a hold placed by Reserve or ReserveEarnings.
func (r *WalletRepository) Release(ctx context.Context, walletID uint, source domain.BalanceSource, amount decimal.Decimal) error {
	col := reservedColumn(source)
	res := conn(ctx, r.db).Model(&models.Wallet{}).
		Where("id = ? AND "+col+" >= "+amountArg, walletID, amount).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col+" - "+amountArg, amount),
			"updated_at": time.Now(),
		})
	return r.guarded(ctx, walletID, res)
}

// Credit adds amount to the balance.
func (r *WalletRepository) Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	res := conn(ctx, r.db).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + "+amountArg, amount),
			"updated_at": time.Now(),
		})
	return r.guarded(ctx, walletID, res)
}

// Settle converts a hold into a real movement. Wallet holds also lower the
// balance; earnings holds only drop the hold, the completed payout row is the ledger entry.
func (r *WalletRepository) Settle(ctx context.Context, walletID uint, source domain.BalanceSource, amount decimal.Decimal) error {
	db := conn(ctx, r.db).Model(&models.Wallet{})
	var res *gorm.DB
	if source == domain.SourceEarnings {
		res = db.Where("id = ? AND earnings_reserved >= "+amountArg, walletID, amount).
			Updates(map[string]interface{}{
				"earnings_reserved": gorm.Expr("earnings_reserved - "+amountArg, amount),
				"updated_at":        time.Now(),
			})
	} else {
		res = db.Where("id = ? AND reserved >= "+amountArg+" AND balance >= "+amountArg, walletID, amount, amount).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - "+amountArg, amount),
				"reserved":   gorm.Expr("reserved - "+amountArg, amount),
				"updated_at": time.Now(),
			})
	}
	return r.guarded(ctx, walletID, res)
}

// guarded turns a zero-row conditional update into ErrWalletNotFound or ErrInsufficientBalance.
func (r *WalletRepository) guarded(ctx context.Context, walletID uint, res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, walletID); err != nil {
		return err
	}
	return domain.ErrInsufficientBalance
}

func reservedColumn(source domain.BalanceSource) string {
	if source == domain.SourceEarnings {
		return "earnings_reserved"
	}
	return "reserved"
}
