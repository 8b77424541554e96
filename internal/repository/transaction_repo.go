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

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	return conn(ctx, r.db).Create(t).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := conn(ctx, r.db).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	var t models.Transaction
	if err := conn(ctx, r.db).Where("external_ref = ?", ref).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var t models.Transaction
	if err := conn(ctx, r.db).Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error) {
	var list []models.Transaction
	err := conn(ctx, r.db).Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// ListStale returns non-terminal transactions created before the cutoff, oldest first.
func (r *TransactionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	var list []models.Transaction
	err := conn(ctx, r.db).
		Where("status IN ? AND created_at < ?", []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}, before).
		Order("created_at ASC").Limit(limit).Find(&list).Error
	return list, err
}

// SumByParent totals child transactions (refunds of a deposit) in the given statuses.
func (r *TransactionRepository) SumByParent(ctx context.Context, parentID uint, statuses []domain.TransactionStatus) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := conn(ctx, r.db).Model(&models.Transaction{}).
		Select("SUM(amount)").
		Where("parent_id = ? AND status IN ?", parentID, statuses).
		Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// Transition moves a transaction to status `to` only if it is currently in one of `from`,
// applying patch in the same statement. Zero matched rows means someone else moved it first.
func (r *TransactionRepository) Transition(ctx context.Context, id uint, from []domain.TransactionStatus, to domain.TransactionStatus, patch map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range patch {
		updates[k] = v
	}
	res := conn(ctx, r.db).Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrInvalidTransition
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// Update patches non-status columns.
func (r *TransactionRepository) Update(ctx context.Context, id uint, patch map[string]interface{}) error {
	patch["updated_at"] = time.Now()
	return conn(ctx, r.db).Model(&models.Transaction{}).Where("id = ?", id).Updates(patch).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTransactionNotFound
	}
	return err
}
