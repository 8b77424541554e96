package repository

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerStat is the count and volume of transactions of one kind in one status.
type LedgerStat struct {
	Kind   domain.TransactionKind   `json:"kind"`
	Status domain.TransactionStatus `json:"status"`
	Count  int64                    `json:"count"`
	Volume decimal.Decimal          `json:"volume"`
}

type DashboardStats struct {
	TotalWallets    int64           `json:"total_wallets"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	TotalReserved   decimal.Decimal `json:"total_reserved"`
	Ledger          []LedgerStat    `json:"ledger"`
	OpenOlderThan1h int64           `json:"open_older_than_1h"`
}

// TransactionFilter narrows the admin transaction list. Zero values match all.
type TransactionFilter struct {
	Kind     domain.TransactionKind
	Status   domain.TransactionStatus
	Provider string
	Since    time.Time
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := conn(ctx, r.db)
	s := DashboardStats{Ledger: []LedgerStat{}}
	if err := db.Model(&models.Wallet{}).Count(&s.TotalWallets).Error; err != nil {
		return nil, err
	}

	var totals struct {
		Balance  decimal.NullDecimal
		Reserved decimal.NullDecimal
	}
	if err := db.Model(&models.Wallet{}).
		Select("SUM(balance) AS balance, SUM(reserved) AS reserved").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	s.TotalBalance = totals.Balance.Decimal
	s.TotalReserved = totals.Reserved.Decimal

	var rows []struct {
		Kind   domain.TransactionKind
		Status domain.TransactionStatus
		Count  int64
		Volume decimal.NullDecimal
	}
	if err := db.Model(&models.Transaction{}).
		Select("kind, status, COUNT(*) AS count, SUM(amount) AS volume").
		Group("kind, status").
		Order("kind, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.Ledger = append(s.Ledger, LedgerStat{Kind: row.Kind, Status: row.Status, Count: row.Count, Volume: row.Volume.Decimal})
	}

	err := db.Model(&models.Transaction{}).
		Where("status IN ?", []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}).
		Where("created_at < ?", time.Now().Add(-time.Hour)).
		Count(&s.OpenOlderThan1h).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListTransactions returns a page of transactions across all wallets, newest first.
func (r *AdminRepository) ListTransactions(ctx context.Context, f TransactionFilter, page, limit int) ([]models.Transaction, int64, error) {
	q := conn(ctx, r.db).Model(&models.Transaction{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	var list []models.Transaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}
