package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"marketplace/internal/database"
	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/internal/repository"
	"marketplace/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mockpay" }

func (m *mockProvider) Authenticate(context.Context) (payment.Token, error) {
	return payment.Token{Value: "t"}, nil
}

func (m *mockProvider) VerifyCallback([]byte, http.Header, url.Values) error { return nil }

func (m *mockProvider) ParseCallback([]byte) (*payment.CallbackResult, error) {
	return nil, payment.ErrMalformed
}

func (m *mockProvider) InitiatePayout(ctx context.Context, req payment.PayoutRequest) (*payment.PayoutResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*payment.PayoutResult)
	return res, args.Error(1)
}

// usdProvider pays out in a fixed currency.
type usdProvider struct {
	mockProvider
}

func (u *usdProvider) Name() string { return "usdpay" }

func (u *usdProvider) PayoutCurrency() string { return "USD" }

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Publish(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Event)
	}
	return out
}

type fixture struct {
	svc      *TransactionService
	reg      *payment.Registry
	stub     *payment.StubProvider
	mockPay  *mockProvider
	notes    *recordingNotifier
	users    *repository.UserRepository
	wallets  *repository.WalletRepository
	txns     *repository.TransactionRepository
	earnings *repository.EarningRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewTestDB(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		stub:     payment.NewStubProvider(""),
		mockPay:  &mockProvider{},
		notes:    &recordingNotifier{},
		users:    repository.NewUserRepository(db),
		wallets:  repository.NewWalletRepository(db),
		txns:     repository.NewTransactionRepository(db),
		earnings: repository.NewEarningRepository(db),
	}
	reg := payment.NewRegistry(f.stub, f.mockPay)
	require.NoError(t, reg.SetDefault(payment.PurposeDeposit, "stub"))
	require.NoError(t, reg.SetDefault(payment.PurposeWithdrawal, "stub"))
	require.NoError(t, reg.SetDefault(payment.PurposePayout, "stub"))

	f.reg = reg
	f.svc = NewTransactionService(repository.NewTxManager(db), f.wallets, f.txns, f.earnings, f.users, reg, f.notes, nil,
		TransactionConfig{ProviderTimeout: time.Second, PublicURL: "https://api.example.com"})
	return f
}

func (f *fixture) user(t *testing.T, role string) (*models.User, *models.Wallet) {
	t.Helper()
	u := &models.User{Email: t.Name() + "-" + role + "@example.com", Role: role, FirstName: "Test"}
	require.NoError(t, f.users.Create(context.Background(), u))
	w, err := f.svc.CreateWallet(context.Background(), u.ID, "")
	require.NoError(t, err)
	return u, w
}

// deposit runs a full stub deposit and returns the completed transaction.
func (f *fixture) deposit(t *testing.T, userID uint, amount string) *models.Transaction {
	t.Helper()
	out, err := f.svc.RequestDeposit(context.Background(), DepositInput{UserID: userID, Amount: dec(amount)})
	require.NoError(t, err)
	txn, err := f.svc.Finalize(context.Background(), "stub", out.Transaction.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{ProviderTxnID: "ptx-1"})
	require.NoError(t, err)
	return txn
}

func (f *fixture) wallet(t *testing.T, id uint) *models.Wallet {
	t.Helper()
	w, err := f.wallets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return w
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestDepositCreditsOnlyOnConfirmation(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()

	out, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: u.ID, Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, out.Transaction.Status)
	assert.NotEmpty(t, out.RedirectURL)
	assertAmount(t, "0", f.wallet(t, w.ID).Balance)

	ref := out.Transaction.ExternalRefValue()
	txn, err := f.svc.Finalize(ctx, "stub", ref, payment.OutcomeSucceeded, FinalizeDetail{ProviderTxnID: "ptx-9"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assert.Equal(t, "ptx-9", txn.Meta()["provider_txn_id"])

	// redelivered callbacks change nothing
	for i := 0; i < 3; i++ {
		_, err = f.svc.Finalize(ctx, "stub", ref, payment.OutcomeSucceeded, FinalizeDetail{})
		assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
	}
	_, err = f.svc.Finalize(ctx, "stub", ref, payment.OutcomeFailed, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)

	assertAmount(t, "100", f.wallet(t, w.ID).Balance)
	assert.Equal(t, []string{domain.EventDepositCompleted}, f.notes.events())
}

func TestDepositPendingOutcomeChangesNothing(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)

	out, err := f.svc.RequestDeposit(context.Background(), DepositInput{UserID: u.ID, Amount: dec("10")})
	require.NoError(t, err)
	txn, err := f.svc.Finalize(context.Background(), "stub", out.Transaction.ExternalRefValue(), payment.OutcomePending, FinalizeDetail{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)
	assertAmount(t, "0", f.wallet(t, w.ID).Balance)
	assert.Empty(t, f.notes.events())

	_, err = f.svc.Finalize(context.Background(), "stub", "no-such-ref", payment.OutcomeSucceeded, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailedWithdrawalRestoresBalance(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()
	f.deposit(t, u.ID, "100")
	f.deposit(t, u.ID, "50")
	assertAmount(t, "150", f.wallet(t, w.ID).Balance)

	txn, err := f.svc.RequestWithdrawal(ctx, PayoutInput{UserID: u.ID, Amount: dec("30"), Destination: payment.Destination{Email: "a@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)

	got := f.wallet(t, w.ID)
	assertAmount(t, "150", got.Balance)
	assertAmount(t, "120", got.Available())

	_, err = f.svc.Finalize(ctx, "stub", txn.ExternalRefValue(), payment.OutcomeFailed, FinalizeDetail{Message: "account closed"})
	require.NoError(t, err)

	got = f.wallet(t, w.ID)
	assertAmount(t, "150", got.Balance)
	assertAmount(t, "150", got.Available())

	stored, err := f.txns.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "account closed", stored.FailureReason)
	assert.Contains(t, stored.BankDetails, "a@example.com")
}

func TestSuccessfulWithdrawalSettles(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	f.deposit(t, u.ID, "150")

	txn, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("30")})
	require.NoError(t, err)
	_, err = f.svc.Finalize(context.Background(), "stub", txn.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{})
	require.NoError(t, err)

	got := f.wallet(t, w.ID)
	assertAmount(t, "120", got.Balance)
	assertAmount(t, "0", got.Reserved)
	assert.Equal(t, []string{domain.EventDepositCompleted, domain.EventWithdrawalCompleted}, f.notes.events())
}

func TestInvalidAmountsCreateNothing(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "1.005"} {
		var verr *domain.ValidationError
		_, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: u.ID, Amount: dec(amount)})
		assert.True(t, errors.As(err, &verr), "deposit %s: %v", amount, err)
		_, err = f.svc.RequestWithdrawal(ctx, PayoutInput{UserID: u.ID, Amount: dec(amount)})
		assert.True(t, errors.As(err, &verr), "withdrawal %s: %v", amount, err)
	}

	list, err := f.txns.ListByWallet(ctx, w.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInsufficientBalanceNeverReachesProvider(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)

	_, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("10"), Provider: "mockpay"})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	f.mockPay.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)

	list, err := f.txns.ListByWallet(context.Background(), w.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnknownAndIncapableProviders(t *testing.T) {
	f := newFixture(t)
	u, _ := f.user(t, domain.RoleCustomer)

	_, err := f.svc.RequestDeposit(context.Background(), DepositInput{UserID: u.ID, Amount: dec("5"), Provider: "nope"})
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
	_, err = f.svc.RequestDeposit(context.Background(), DepositInput{UserID: u.ID, Amount: dec("5"), Provider: "mockpay"})
	assert.ErrorIs(t, err, payment.ErrUnsupported)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	f.deposit(t, u.ID, "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, insufficient int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("60")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, insufficient)
	got := f.wallet(t, w.ID)
	assertAmount(t, "60", got.Reserved)
	assert.False(t, got.Available().IsNegative())
}

func TestProviderTimeoutLeavesTransactionPending(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	f.deposit(t, u.ID, "100")
	f.mockPay.On("InitiatePayout", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded).Once()

	_, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("30"), Provider: "mockpay"})
	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
	f.mockPay.AssertExpectations(t)

	list, err := f.txns.ListByWallet(context.Background(), w.ID, 10, 0)
	require.NoError(t, err)
	var pending *models.Transaction
	for i := range list {
		if list[i].Kind == domain.KindWithdrawal {
			pending = &list[i]
		}
	}
	require.NotNil(t, pending)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assertAmount(t, "30", f.wallet(t, w.ID).Reserved)

	// the stale sweep fails it and frees the hold
	f.svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	report, err := f.svc.ReconcileStale(context.Background(), 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assertAmount(t, "0", f.wallet(t, w.ID).Reserved)
	assertAmount(t, "100", f.wallet(t, w.ID).Balance)
}

func TestProviderRejectionFailsAndReleases(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	f.deposit(t, u.ID, "100")
	rejected := &payment.ProviderError{Provider: "mockpay", Op: "payout", StatusCode: 422, Message: "bad account", Err: payment.ErrRejected}
	f.mockPay.On("InitiatePayout", mock.Anything, mock.MatchedBy(func(req payment.PayoutRequest) bool {
		return req.Amount.Equal(dec("40")) && req.Currency == domain.DefaultCurrency &&
			req.CallbackURL == "https://api.example.com/api/v1/webhooks/mockpay"
	})).Return(nil, rejected).Once()

	_, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("40"), Provider: "mockpay"})
	assert.ErrorIs(t, err, payment.ErrRejected)
	f.mockPay.AssertExpectations(t)

	got := f.wallet(t, w.ID)
	assertAmount(t, "0", got.Reserved)
	assertAmount(t, "100", got.Balance)
}

func TestWorkerPayoutDrawsFromEarnings(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleWorker)
	ctx := context.Background()
	require.NoError(t, f.earnings.Create(ctx, &models.WorkerEarning{WorkerID: u.ID, Amount: dec("100"), OrderRef: "order-1"}))

	txn, err := f.svc.RequestWorkerPayout(ctx, PayoutInput{UserID: u.ID, Amount: dec("70")})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceEarnings, txn.BalanceSource)

	_, err = f.svc.RequestWorkerPayout(ctx, PayoutInput{UserID: u.ID, Amount: dec("31")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.svc.Finalize(ctx, "stub", txn.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{})
	require.NoError(t, err)

	view, err := f.svc.GetWallet(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, view.EarningsAvailable)
	assertAmount(t, "30", *view.EarningsAvailable)
	assertAmount(t, "0", view.Balance)
	assertAmount(t, "0", f.wallet(t, w.ID).EarningsReserved)
}

func TestNonWorkerPayoutDrawsFromWallet(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleDriver)
	f.deposit(t, u.ID, "50")

	txn, err := f.svc.RequestWorkerPayout(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("20")})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWallet, txn.BalanceSource)
	assertAmount(t, "30", f.wallet(t, w.ID).Available())

	view, err := f.svc.GetWallet(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Nil(t, view.EarningsAvailable)
}

func TestReconcileUsesProviderStatus(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()

	out, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: u.ID, Amount: dec("100")})
	require.NoError(t, err)
	ref := out.Transaction.ExternalRefValue()

	txn, err := f.svc.Reconcile(ctx, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)

	f.stub.Settle(ref, payment.OutcomeSucceeded)
	txn, err = f.svc.Reconcile(ctx, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assertAmount(t, "100", f.wallet(t, w.ID).Balance)

	// a late callback after reconciliation is a no-op
	_, err = f.svc.Finalize(ctx, "stub", ref, payment.OutcomeSucceeded, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
	assertAmount(t, "100", f.wallet(t, w.ID).Balance)
}

func TestReconcileByExternalRefChecksOwnership(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, domain.RoleCustomer)
	other, _ := f.user(t, domain.RoleStore)
	ctx := context.Background()

	out, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: owner.ID, Amount: dec("10")})
	require.NoError(t, err)
	ref := out.Transaction.ExternalRefValue()

	_, err = f.svc.ReconcileByExternalRef(ctx, Actor{UserID: other.ID, Role: domain.RoleStore}, ref)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	txn, err := f.svc.ReconcileByExternalRef(ctx, Actor{UserID: owner.ID, Role: domain.RoleCustomer}, ref)
	require.NoError(t, err)
	assert.Equal(t, out.Transaction.ID, txn.ID)

	txn, err = f.svc.ReconcileByExternalRef(ctx, Actor{UserID: 999, Role: domain.RoleAdmin}, out.Transaction.Reference)
	require.NoError(t, err)
	assert.Equal(t, out.Transaction.ID, txn.ID)
}

func TestRefundIsBoundedByDeposit(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()
	dep := f.deposit(t, u.ID, "100")

	refund, err := f.svc.Refund(ctx, dep.ID, dec("60"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, refund.Status)
	require.NotNil(t, refund.ParentID)
	assert.Equal(t, dep.ID, *refund.ParentID)
	assertAmount(t, "40", f.wallet(t, w.ID).Balance)

	var verr *domain.ValidationError
	_, err = f.svc.Refund(ctx, dep.ID, dec("50"))
	assert.True(t, errors.As(err, &verr), "%v", err)

	_, err = f.svc.Refund(ctx, refund.ID, dec("1"))
	assert.True(t, errors.As(err, &verr), "%v", err)
	assertAmount(t, "40", f.wallet(t, w.ID).Balance)
}

func TestActorTarget(t *testing.T) {
	self := Actor{UserID: 5, Role: domain.RoleCustomer}
	id, err := self.Target(0)
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)
	_, err = self.Target(6)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	admin := Actor{UserID: 1, Role: domain.RoleAdmin}
	id, err = admin.Target(6)
	require.NoError(t, err)
	assert.Equal(t, uint(6), id)
}

func TestCallbackFromOtherProviderIsNotApplied(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()

	out, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: u.ID, Amount: dec("500")})
	require.NoError(t, err)
	ref := out.Transaction.ExternalRefValue()

	_, err = f.svc.Finalize(ctx, "mockpay", ref, payment.OutcomeSucceeded, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assertAmount(t, "0", f.wallet(t, w.ID).Balance)

	stored, err := f.txns.GetByID(ctx, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Empty(t, f.notes.events())
}

// ledgerBalance recomputes the wallet from its completed transactions.
func ledgerBalance(t *testing.T, f *fixture, walletID uint) (balance, held decimal.Decimal) {
	t.Helper()
	list, err := f.txns.ListByWallet(context.Background(), walletID, 100, 0)
	require.NoError(t, err)
	for _, txn := range list {
		if txn.BalanceSource != domain.SourceWallet {
			continue
		}
		switch {
		case txn.Status == domain.StatusCompleted && txn.Kind == domain.KindDeposit:
			balance = balance.Add(txn.Amount)
		case txn.Status == domain.StatusCompleted && txn.Kind.Debits():
			balance = balance.Sub(txn.Amount)
		case !txn.Status.Terminal() && txn.Kind.Debits():
			held = held.Add(txn.Amount)
		}
	}
	return balance, held
}

func TestBalanceMatchesLedgerAfterMixedActivity(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleStore)
	ctx := context.Background()

	dep := f.deposit(t, u.ID, "200")
	_, err := f.svc.Finalize(ctx, "stub", dep.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)

	failedDep, err := f.svc.RequestDeposit(ctx, DepositInput{UserID: u.ID, Amount: dec("50")})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, "stub", failedDep.Transaction.ExternalRefValue(), payment.OutcomeFailed, FinalizeDetail{})
	require.NoError(t, err)

	wd, err := f.svc.RequestWithdrawal(ctx, PayoutInput{UserID: u.ID, Amount: dec("30")})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, "stub", wd.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{})
	require.NoError(t, err)

	wdFail, err := f.svc.RequestWithdrawal(ctx, PayoutInput{UserID: u.ID, Amount: dec("20")})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, "stub", wdFail.ExternalRefValue(), payment.OutcomeFailed, FinalizeDetail{})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, dep.ID, dec("40"))
	require.NoError(t, err)

	po, err := f.svc.RequestWorkerPayout(ctx, PayoutInput{UserID: u.ID, Amount: dec("25")})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWallet, po.BalanceSource)
	_, err = f.svc.Finalize(ctx, "stub", po.ExternalRefValue(), payment.OutcomeSucceeded, FinalizeDetail{})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, "stub", po.ExternalRefValue(), payment.OutcomeFailed, FinalizeDetail{})
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)

	open, err := f.svc.RequestWithdrawal(ctx, PayoutInput{UserID: u.ID, Amount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, open.Status)

	got := f.wallet(t, w.ID)
	balance, held := ledgerBalance(t, f, w.ID)
	assertAmount(t, "105", got.Balance)
	assertAmount(t, "10", got.Reserved)
	assertAmount(t, balance.String(), got.Balance)
	assertAmount(t, held.String(), got.Reserved)
	assertAmount(t, "95", got.Available())
}

func TestPendingRefundIsReconciled(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	ctx := context.Background()
	dep := f.deposit(t, u.ID, "100")
	f.stub.PendingRefunds = true

	refund, err := f.svc.Refund(ctx, dep.ID, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, refund.Status)
	assertAmount(t, "30", f.wallet(t, w.ID).Reserved)

	txn, err := f.svc.Reconcile(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)

	f.stub.Settle(refund.ExternalRefValue(), payment.OutcomeSucceeded)
	txn, err = f.svc.Reconcile(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	got := f.wallet(t, w.ID)
	assertAmount(t, "70", got.Balance)
	assertAmount(t, "0", got.Reserved)

	// a refund the provider later declines is failed by the stale sweep
	declined, err := f.svc.Refund(ctx, dep.ID, dec("20"))
	require.NoError(t, err)
	f.stub.Settle(declined.ExternalRefValue(), payment.OutcomeFailed)
	f.svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	report, err := f.svc.ReconcileStale(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Errors)
	got = f.wallet(t, w.ID)
	assertAmount(t, "70", got.Balance)
	assertAmount(t, "0", got.Reserved)
}

func TestPayoutRejectsCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, domain.RoleCustomer)
	f.deposit(t, u.ID, "100")
	usd := &usdProvider{}
	f.reg.Register(usd)

	var verr *domain.ValidationError
	_, err := f.svc.RequestWithdrawal(context.Background(), PayoutInput{UserID: u.ID, Amount: dec("100"), Provider: "usdpay"})
	require.True(t, errors.As(err, &verr), "%v", err)
	assert.Equal(t, "provider", verr.Field)
	usd.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)

	got := f.wallet(t, w.ID)
	assertAmount(t, "0", got.Reserved)
	list, err := f.txns.ListByWallet(context.Background(), w.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
