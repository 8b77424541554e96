package repository

import (
	"context"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EarningRepository struct {
	db *gorm.DB
}

func NewEarningRepository(db *gorm.DB) *EarningRepository {
	return &EarningRepository{db: db}
}

func (r *EarningRepository) Create(ctx context.Context, e *models.WorkerEarning) error {
	return conn(ctx, r.db).Create(e).Error
}

func (r *EarningRepository) TotalEarned(ctx context.Context, workerID uint) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := conn(ctx, r.db).Model(&models.WorkerEarning{}).
		Select("SUM(amount)").Where("worker_id = ?", workerID).Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// TotalPaid sums completed payouts drawn from earnings on the worker's wallet.
func (r *EarningRepository) TotalPaid(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := conn(ctx, r.db).Model(&models.Transaction{}).
		Select("SUM(amount)").
		Where("wallet_id = ? AND kind = ? AND balance_source = ? AND status = ?",
			walletID, domain.KindPayout, domain.SourceEarnings, domain.StatusCompleted).
		Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}
