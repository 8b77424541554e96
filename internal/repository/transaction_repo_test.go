package repository

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionTransitionIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	_, w := seedWallet(t, db, domain.RoleCustomer, "")

	ref := "ext-1"
	txn := &models.Transaction{
		Reference: "TXN-A", WalletID: w.ID, Kind: domain.KindDeposit, BalanceSource: domain.SourceWallet,
		Provider: domain.ProviderStub, Amount: dec("100"), Status: domain.StatusPending, ExternalRef: &ref,
	}
	require.NoError(t, repo.Create(ctx, txn))

	got, err := repo.GetByExternalRef(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	open := []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}
	require.NoError(t, repo.Transition(ctx, txn.ID, open, domain.StatusCompleted, map[string]interface{}{"completed_at": time.Now()}))
	assert.ErrorIs(t, repo.Transition(ctx, txn.ID, open, domain.StatusFailed, nil), domain.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Transition(ctx, 9999, open, domain.StatusFailed, nil), domain.ErrTransactionNotFound)

	got, err = repo.GetByReference(ctx, "TXN-A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	_, err = repo.GetByExternalRef(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionListing(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	_, w := seedWallet(t, db, domain.RoleCustomer, "")

	for i, st := range []domain.TransactionStatus{domain.StatusPending, domain.StatusCompleted, domain.StatusProcessing} {
		require.NoError(t, repo.Create(ctx, &models.Transaction{
			Reference: "TXN-" + string(rune('A'+i)), WalletID: w.ID, Kind: domain.KindWithdrawal,
			BalanceSource: domain.SourceWallet, Provider: domain.ProviderStub, Amount: dec("1"), Status: st,
		}))
	}

	list, err := repo.ListByWallet(ctx, w.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	stale, err := repo.ListStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	stale, err = repo.ListStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestTransactionMetadata(t *testing.T) {
	var txn models.Transaction
	assert.Empty(t, txn.Meta())
	txn.MergeMeta(map[string]string{"a": "1"})
	txn.MergeMeta(map[string]string{"b": "2", "a": "3"})
	assert.Equal(t, map[string]string{"a": "3", "b": "2"}, txn.Meta())
	assert.Equal(t, "", txn.ExternalRefValue())
}
