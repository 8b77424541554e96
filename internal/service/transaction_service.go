package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// localRefundPrefix marks refunds the provider returned no id for.
const localRefundPrefix = "refund:"

var openStatuses = []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// Target resolves the user an operation applies to. A different user may
// only be named by an admin.
func (a Actor) Target(userID uint) (uint, error) {
	if userID == 0 || userID == a.UserID {
		return a.UserID, nil
	}
	if a.IsAdmin() {
		return userID, nil
	}
	return 0, domain.ErrForbidden
}

// BalanceSource is where a debit draws from, resolved once per actor.
type BalanceSource interface {
	Kind() domain.BalanceSource
	reserve(ctx context.Context, wallets WalletStore, amount decimal.Decimal) error
}

// WalletSource draws from the wallet's unreserved balance.
type WalletSource struct {
	WalletID uint
}

func (WalletSource) Kind() domain.BalanceSource { return domain.SourceWallet }

func (s WalletSource) reserve(ctx context.Context, wallets WalletStore, amount decimal.Decimal) error {
	return wallets.Reserve(ctx, s.WalletID, amount)
}

// EarningsSource draws from a worker's unpaid earnings. The wallet row only
// carries the hold.
type EarningsSource struct {
	WorkerID uint
	WalletID uint
}

func (EarningsSource) Kind() domain.BalanceSource { return domain.SourceEarnings }

func (s EarningsSource) reserve(ctx context.Context, wallets WalletStore, amount decimal.Decimal) error {
	return wallets.ReserveEarnings(ctx, s.WalletID, s.WorkerID, amount)
}

// ResolveBalanceSource: workers are paid from earnings, everyone else from the wallet.
func ResolveBalanceSource(user *models.User, wallet *models.Wallet) BalanceSource {
	if user.IsWorker() {
		return EarningsSource{WorkerID: user.ID, WalletID: wallet.ID}
	}
	return WalletSource{WalletID: wallet.ID}
}

type TransactionConfig struct {
	ProviderTimeout time.Duration
	// PublicURL prefixes provider callback URLs.
	PublicURL string
	ReturnURL string
}

// TransactionService drives every wallet-affecting transaction from request
// to a terminal status.
type TransactionService struct {
	tx        Transactor
	wallets   WalletStore
	txns      TransactionStore
	earnings  EarningsStore
	users     UserStore
	providers *payment.Registry
	notifier  Notifier
	log       *zap.Logger
	cfg       TransactionConfig
	now       func() time.Time
}

func NewTransactionService(
	tx Transactor,
	wallets WalletStore,
	txns TransactionStore,
	earnings EarningsStore,
	users UserStore,
	providers *payment.Registry,
	notifier Notifier,
	log *zap.Logger,
	cfg TransactionConfig,
) *TransactionService {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TransactionService{
		tx:        tx,
		wallets:   wallets,
		txns:      txns,
		earnings:  earnings,
		users:     users,
		providers: providers,
		notifier:  notifier,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

type DepositInput struct {
	UserID    uint
	Amount    decimal.Decimal
	Provider  string
	Billing   payment.Billing
	ReturnURL string
}

type DepositOutcome struct {
	Transaction *models.Transaction `json:"transaction"`
	RedirectURL string              `json:"redirect_url"`
}

// PayoutInput serves both withdrawals and worker payouts.
type PayoutInput struct {
	UserID      uint
	Amount      decimal.Decimal
	Provider    string
	Destination payment.Destination
	Note        string
}

// FinalizeDetail is what the provider said besides the outcome.
type FinalizeDetail struct {
	Message       string
	ProviderTxnID string
}

type WalletView struct {
	*models.Wallet
	Available         decimal.Decimal  `json:"available"`
	EarningsAvailable *decimal.Decimal `json:"earnings_available,omitempty"`
}

type ReconcileReport struct {
	Checked    int `json:"checked"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Expired    int `json:"expired"`
	Unresolved int `json:"unresolved"`
	Errors     int `json:"errors"`
}

func (s *TransactionService) CreateWallet(ctx context.Context, userID uint, currency string) (*models.Wallet, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.wallets.Create(ctx, userID, currency)
}

// GetWallet returns the wallet with its spendable amounts. Workers also see
// their unpaid earnings.
func (s *TransactionService) GetWallet(ctx context.Context, userID uint) (*WalletView, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &WalletView{Wallet: w, Available: w.Available()}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsWorker() {
		avail, err := s.earningsAvailable(ctx, user.ID, w)
		if err != nil {
			return nil, err
		}
		view.EarningsAvailable = &avail
	}
	return view, nil
}

func (s *TransactionService) earningsAvailable(ctx context.Context, workerID uint, w *models.Wallet) (decimal.Decimal, error) {
	earned, err := s.earnings.TotalEarned(ctx, workerID)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := s.earnings.TotalPaid(ctx, w.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return earned.Sub(paid).Sub(w.EarningsReserved), nil
}

func (s *TransactionService) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.txns.ListByWallet(ctx, w.ID, limit, offset)
}

// RequestDeposit opens a pending deposit and asks the provider for a
// checkout. The wallet is credited only when the provider confirms.
func (s *TransactionService) RequestDeposit(ctx context.Context, in DepositInput) (*DepositOutcome, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	adapter, depositor, err := s.providers.Depositor(in.Provider)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByUserID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	billing, err := s.billingFor(ctx, in.UserID, in.Billing)
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(wallet, domain.KindDeposit, domain.SourceWallet, adapter.Name(), in.Amount)
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, err
	}

	returnURL := in.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := depositor.InitiateDeposit(callCtx, payment.DepositRequest{
		Reference:   txn.Reference,
		Amount:      in.Amount,
		Currency:    wallet.Currency,
		Billing:     billing,
		CallbackURL: s.callbackURL(adapter.Name()),
		ReturnURL:   returnURL,
	})
	if err == nil && res.ExternalRef == "" {
		err = &payment.ProviderError{Provider: adapter.Name(), Op: "deposit", Message: "no reference returned", Err: payment.ErrRejected}
	}
	if err != nil {
		return nil, s.abandon(ctx, txn, err)
	}
	if err := s.markProcessing(ctx, txn, res.ExternalRef, res.Metadata); err != nil {
		return nil, err
	}
	s.log.Info("deposit initiated",
		zap.String("reference", txn.Reference),
		zap.String("provider", txn.Provider),
		zap.String("external_ref", res.ExternalRef),
		zap.String("amount", in.Amount.String()))
	return &DepositOutcome{Transaction: txn, RedirectURL: res.RedirectURL}, nil
}

// RequestWithdrawal sends wallet funds out. The amount is held against the
// available balance before the provider is called, so concurrent requests
// can never overdraw.
func (s *TransactionService) RequestWithdrawal(ctx context.Context, in PayoutInput) (*models.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	adapter, payouter, err := s.providers.Payouter(payment.PurposeWithdrawal, in.Provider)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByUserID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return s.startPayout(ctx, domain.KindWithdrawal, adapter, payouter, wallet, WalletSource{WalletID: wallet.ID}, in)
}

// RequestWorkerPayout pays a worker from earnings, or any other actor from
// their wallet.
func (s *TransactionService) RequestWorkerPayout(ctx context.Context, in PayoutInput) (*models.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	adapter, payouter, err := s.providers.Payouter(payment.PurposePayout, in.Provider)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByUserID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return s.startPayout(ctx, domain.KindPayout, adapter, payouter, wallet, ResolveBalanceSource(user, wallet), in)
}

func (s *TransactionService) startPayout(
	ctx context.Context,
	kind domain.TransactionKind,
	adapter payment.Adapter,
	payouter payment.Payouter,
	wallet *models.Wallet,
	source BalanceSource,
	in PayoutInput,
) (*models.Transaction, error) {
	if pc, ok := adapter.(payment.PayoutCurrency); ok && !strings.EqualFold(pc.PayoutCurrency(), wallet.Currency) {
		return nil, &domain.ValidationError{
			Field:  "provider",
			Reason: fmt.Sprintf("%s pays out in %s, the wallet holds %s", adapter.Name(), pc.PayoutCurrency(), wallet.Currency),
		}
	}
	txn := s.newTransaction(wallet, kind, source.Kind(), adapter.Name(), in.Amount)
	if in.Destination != (payment.Destination{}) {
		b, err := json.Marshal(in.Destination)
		if err != nil {
			return nil, fmt.Errorf("encode destination: %w", err)
		}
		txn.BankDetails = string(b)
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := source.reserve(ctx, s.wallets, in.Amount); err != nil {
			return err
		}
		return s.txns.Create(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := payouter.InitiatePayout(callCtx, payment.PayoutRequest{
		Reference:   txn.Reference,
		Amount:      in.Amount,
		Currency:    wallet.Currency,
		Destination: in.Destination,
		Note:        in.Note,
		CallbackURL: s.callbackURL(adapter.Name()),
	})
	if err == nil && res.ExternalRef == "" {
		err = &payment.ProviderError{Provider: adapter.Name(), Op: "payout", Message: "no reference returned", Err: payment.ErrRejected}
	}
	if err != nil {
		return nil, s.abandon(ctx, txn, err)
	}
	meta := map[string]string{"provider_status": res.Status}
	for k, v := range res.Metadata {
		meta[k] = v
	}
	if err := s.markProcessing(ctx, txn, res.ExternalRef, meta); err != nil {
		return nil, err
	}
	s.log.Info("payout initiated",
		zap.String("kind", string(kind)),
		zap.String("reference", txn.Reference),
		zap.String("provider", txn.Provider),
		zap.String("source", string(source.Kind())),
		zap.String("external_ref", res.ExternalRef),
		zap.String("amount", in.Amount.String()))
	return txn, nil
}

// Finalize applies an outcome reported by provider to the transaction with
// externalRef. Transactions owned by another provider are reported as not found.
// A transaction that is already terminal is returned with ErrDuplicateCallback
// and nothing changes; a pending outcome changes nothing either.
func (s *TransactionService) Finalize(ctx context.Context, provider, externalRef string, outcome payment.Outcome, detail FinalizeDetail) (*models.Transaction, error) {
	txn, err := s.txns.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if txn.Provider != provider {
		s.log.Warn("callback from a provider that does not own the transaction",
			zap.String("provider", provider),
			zap.String("owner", txn.Provider),
			zap.String("external_ref", externalRef))
		return nil, domain.ErrTransactionNotFound
	}
	if txn.Status.Terminal() {
		return txn, domain.ErrDuplicateCallback
	}
	if outcome == payment.OutcomePending {
		return txn, nil
	}
	return s.finalize(ctx, txn, outcome, detail)
}

func (s *TransactionService) finalize(ctx context.Context, txn *models.Transaction, outcome payment.Outcome, detail FinalizeDetail) (*models.Transaction, error) {
	to := domain.StatusFailed
	if outcome == payment.OutcomeSucceeded {
		to = domain.StatusCompleted
	}
	if detail.ProviderTxnID != "" {
		txn.MergeMeta(map[string]string{"provider_txn_id": detail.ProviderTxnID})
	}
	now := s.now()
	patch := map[string]interface{}{"metadata": txn.Metadata}
	if to == domain.StatusCompleted {
		patch["completed_at"] = now
	} else {
		reason := detail.Message
		if reason == "" {
			reason = "declined by provider"
		}
		patch["failure_reason"] = truncate(reason, 512)
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.txns.Transition(ctx, txn.ID, openStatuses, to, patch); err != nil {
			return err
		}
		return s.applyBalance(ctx, txn, to)
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// lost the race to a concurrent delivery
		if current, gerr := s.txns.GetByID(ctx, txn.ID); gerr == nil {
			txn = current
		}
		return txn, domain.ErrDuplicateCallback
	}
	if err != nil {
		return nil, err
	}

	txn.Status = to
	if to == domain.StatusCompleted {
		txn.CompletedAt = &now
	} else {
		txn.FailureReason = patch["failure_reason"].(string)
	}
	s.log.Info("transaction finalized",
		zap.Uint("transaction_id", txn.ID),
		zap.String("reference", txn.Reference),
		zap.String("kind", string(txn.Kind)),
		zap.String("status", string(to)))
	s.notify(ctx, txn)
	return txn, nil
}

// applyBalance is the only place a finished transaction moves money.
func (s *TransactionService) applyBalance(ctx context.Context, txn *models.Transaction, to domain.TransactionStatus) error {
	switch {
	case to == domain.StatusCompleted && txn.Kind == domain.KindDeposit:
		return s.wallets.Credit(ctx, txn.WalletID, txn.Amount)
	case to == domain.StatusCompleted && txn.Kind.Debits():
		return s.wallets.Settle(ctx, txn.WalletID, txn.BalanceSource, txn.Amount)
	case to == domain.StatusFailed && txn.Kind.Debits():
		return s.wallets.Release(ctx, txn.WalletID, txn.BalanceSource, txn.Amount)
	}
	return nil
}

// Reconcile asks the provider for the current state of a transaction and
// finalizes it when the provider has decided.
func (s *TransactionService) Reconcile(ctx context.Context, transactionID uint) (*models.Transaction, error) {
	txn, err := s.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, txn)
}

// ReconcileByExternalRef looks a transaction up by provider id (or our own
// reference) on behalf of its owner and reconciles it when possible.
func (s *TransactionService) ReconcileByExternalRef(ctx context.Context, actor Actor, ref string) (*models.Transaction, error) {
	txn, err := s.txns.GetByExternalRef(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		txn, err = s.txns.GetByReference(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, txn.WalletID); err != nil {
		return nil, err
	}
	updated, err := s.reconcile(ctx, txn)
	if errors.Is(err, domain.ErrNotReconcilable) {
		return txn, nil
	}
	return updated, err
}

func (s *TransactionService) reconcile(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.Status.Terminal() {
		return txn, nil
	}
	if txn.ExternalRef == nil {
		return txn, fmt.Errorf("%w: %s has no provider reference", domain.ErrNotReconcilable, txn.Reference)
	}
	adapter, err := s.providers.Get(txn.Provider)
	if err != nil {
		return txn, fmt.Errorf("%w: %v", domain.ErrNotReconcilable, err)
	}
	lookup, err := statusLookup(adapter, txn)
	if err != nil {
		return txn, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	outcome, err := lookup(callCtx, *txn.ExternalRef)
	if err != nil {
		if isTimeout(err) {
			return txn, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
		}
		return txn, err
	}
	if outcome == payment.OutcomePending {
		return txn, nil
	}
	updated, err := s.finalize(ctx, txn, outcome, FinalizeDetail{Message: "reported by provider status lookup"})
	if errors.Is(err, domain.ErrDuplicateCallback) {
		return updated, nil
	}
	return updated, err
}

// statusLookup picks the provider query for txn. Refunds are looked up by
// the refund id the provider returned, everything else by its external ref.
func statusLookup(adapter payment.Adapter, txn *models.Transaction) (func(context.Context, string) (payment.Outcome, error), error) {
	if txn.Kind == domain.KindRefund {
		checker, ok := adapter.(payment.RefundStatusChecker)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no refund lookup", domain.ErrNotReconcilable, adapter.Name())
		}
		if strings.HasPrefix(*txn.ExternalRef, localRefundPrefix) {
			return nil, fmt.Errorf("%w: %s has no provider refund id", domain.ErrNotReconcilable, txn.Reference)
		}
		return checker.RefundStatus, nil
	}
	checker, ok := adapter.(payment.StatusChecker)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no status lookup", domain.ErrNotReconcilable, adapter.Name())
	}
	return checker.Status, nil
}

// ReconcileStale resolves non-terminal transactions older than olderThan.
// Those that never got a provider reference are failed and their holds released.
func (s *TransactionService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileReport, error) {
	list, err := s.txns.ListStale(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	for i := range list {
		txn := &list[i]
		report.Checked++
		if txn.ExternalRef == nil {
			if _, err := s.finalize(ctx, txn, payment.OutcomeFailed, FinalizeDetail{Message: "expired without provider reference"}); err != nil && !errors.Is(err, domain.ErrDuplicateCallback) {
				report.Errors++
				s.log.Error("expire stale transaction", zap.Uint("transaction_id", txn.ID), zap.Error(err))
				continue
			}
			report.Expired++
			continue
		}
		updated, err := s.reconcile(ctx, txn)
		if errors.Is(err, domain.ErrNotReconcilable) {
			report.Unresolved++
			s.log.Warn("stale transaction needs manual review", zap.Uint("transaction_id", txn.ID), zap.Error(err))
			continue
		}
		if err != nil {
			report.Errors++
			s.log.Warn("reconcile stale transaction", zap.Uint("transaction_id", txn.ID), zap.String("provider", txn.Provider), zap.Error(err))
			continue
		}
		switch updated.Status {
		case domain.StatusCompleted:
			report.Completed++
		case domain.StatusFailed:
			report.Failed++
		default:
			report.Unresolved++
		}
	}
	return report, nil
}

// Refund returns part or all of a completed deposit through the provider
// that took it. The refunded amount leaves the wallet like a withdrawal.
func (s *TransactionService) Refund(ctx context.Context, transactionID uint, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	orig, err := s.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if orig.Kind != domain.KindDeposit || orig.Status != domain.StatusCompleted {
		return nil, &domain.ValidationError{Field: "transaction", Reason: "only completed deposits can be refunded"}
	}
	adapter, err := s.providers.Get(orig.Provider)
	if err != nil {
		return nil, err
	}
	refunder, ok := adapter.(payment.Refunder)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot refund", payment.ErrUnsupported, adapter.Name())
	}
	wallet, err := s.wallets.GetByID(ctx, orig.WalletID)
	if err != nil {
		return nil, err
	}

	refund := s.newTransaction(wallet, domain.KindRefund, domain.SourceWallet, adapter.Name(), amount)
	refund.ParentID = &orig.ID
	refund.MergeMeta(map[string]string{"refund_of": orig.Reference})
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		refunded, err := s.txns.SumByParent(ctx, orig.ID, []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted})
		if err != nil {
			return err
		}
		if refunded.Add(amount).GreaterThan(orig.Amount) {
			return &domain.ValidationError{Field: "amount", Reason: "exceeds the refundable amount of " + orig.Amount.Sub(refunded).StringFixed(2)}
		}
		if err := s.wallets.Reserve(ctx, wallet.ID, amount); err != nil {
			return err
		}
		return s.txns.Create(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	meta := orig.Meta()
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := refunder.Refund(callCtx, payment.RefundRequest{
		Reference:     refund.Reference,
		ExternalRef:   orig.ExternalRefValue(),
		ProviderTxnID: meta["provider_txn_id"],
		Amount:        amount,
		Currency:      wallet.Currency,
	})
	if err != nil {
		return nil, s.abandon(ctx, refund, err)
	}
	ref := res.RefundID
	if ref == "" || ref == "0" {
		ref = localRefundPrefix + refund.Reference
	}
	if err := s.markProcessing(ctx, refund, ref, map[string]string{"provider_status": res.Status}); err != nil {
		return nil, err
	}
	if strings.EqualFold(res.Status, "PENDING") {
		return refund, nil
	}
	return s.finalize(context.WithoutCancel(ctx), refund, payment.OutcomeSucceeded, FinalizeDetail{})
}

func (s *TransactionService) authorize(ctx context.Context, actor Actor, walletID uint) error {
	if actor.IsAdmin() {
		return nil
	}
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return err
	}
	if w.UserID != actor.UserID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *TransactionService) newTransaction(w *models.Wallet, kind domain.TransactionKind, source domain.BalanceSource, provider string, amount decimal.Decimal) *models.Transaction {
	return &models.Transaction{
		Reference:     uuid.NewString(),
		WalletID:      w.ID,
		Kind:          kind,
		BalanceSource: source,
		Provider:      provider,
		Amount:        amount,
		Currency:      w.Currency,
		Status:        domain.StatusPending,
	}
}

// markProcessing stores the provider reference once the provider accepted the request.
func (s *TransactionService) markProcessing(ctx context.Context, txn *models.Transaction, externalRef string, meta map[string]string) error {
	txn.MergeMeta(meta)
	err := s.txns.Transition(context.WithoutCancel(ctx), txn.ID, []domain.TransactionStatus{domain.StatusPending}, domain.StatusProcessing, map[string]interface{}{
		"external_ref": externalRef,
		"metadata":     txn.Metadata,
	})
	if err != nil {
		s.log.Error("store provider reference",
			zap.String("reference", txn.Reference),
			zap.String("external_ref", externalRef),
			zap.Error(err))
		return err
	}
	txn.Status = domain.StatusProcessing
	txn.ExternalRef = &externalRef
	return nil
}

// abandon records a failed provider call and returns callErr for the caller.
// A timeout leaves the transaction pending with its hold for the stale sweep;
// any other error fails it and releases the hold.
func (s *TransactionService) abandon(ctx context.Context, txn *models.Transaction, callErr error) error {
	ctx = context.WithoutCancel(ctx)
	if isTimeout(callErr) {
		s.log.Warn("provider call timed out; transaction left pending",
			zap.String("reference", txn.Reference),
			zap.String("provider", txn.Provider),
			zap.Error(callErr))
		if err := s.txns.Update(ctx, txn.ID, map[string]interface{}{"failure_reason": "provider timeout"}); err != nil {
			s.log.Error("note provider timeout", zap.String("reference", txn.Reference), zap.Error(err))
		}
		return fmt.Errorf("%w: %s", domain.ErrProviderTimeout, txn.Reference)
	}

	reason := truncate(callErr.Error(), 512)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.txns.Transition(ctx, txn.ID, []domain.TransactionStatus{domain.StatusPending}, domain.StatusFailed, map[string]interface{}{"failure_reason": reason}); err != nil {
			return err
		}
		if txn.Kind.Debits() {
			return s.wallets.Release(ctx, txn.WalletID, txn.BalanceSource, txn.Amount)
		}
		return nil
	})
	if err != nil {
		s.log.Error("mark transaction failed", zap.String("reference", txn.Reference), zap.Error(err))
	} else {
		txn.Status = domain.StatusFailed
		txn.FailureReason = reason
	}
	s.log.Warn("provider call failed",
		zap.String("reference", txn.Reference),
		zap.String("provider", txn.Provider),
		zap.String("kind", string(txn.Kind)),
		zap.Error(callErr))
	return callErr
}

func (s *TransactionService) notify(ctx context.Context, txn *models.Transaction) {
	if s.notifier == nil {
		return
	}
	w, err := s.wallets.GetByID(ctx, txn.WalletID)
	if err != nil {
		s.log.Warn("notification skipped", zap.Uint("transaction_id", txn.ID), zap.Error(err))
		return
	}
	event, key := eventFor(txn.Kind, txn.Status)
	if event == "" {
		return
	}
	s.notifier.Publish(ctx, Notice{
		UserID:        w.UserID,
		Event:         event,
		TransactionID: txn.ID,
		Key:           key,
		Args:          []interface{}{txn.Amount.StringFixed(2), txn.Currency},
		Payload: map[string]interface{}{
			"transaction_id": txn.ID,
			"reference":      txn.Reference,
			"kind":           txn.Kind,
			"status":         txn.Status,
			"amount":         txn.Amount.StringFixed(2),
			"currency":       txn.Currency,
		},
	})
}

func eventFor(kind domain.TransactionKind, status domain.TransactionStatus) (event, key string) {
	ok := status == domain.StatusCompleted
	switch kind {
	case domain.KindDeposit:
		if ok {
			return domain.EventDepositCompleted, "notify.deposit.completed"
		}
		return domain.EventDepositFailed, "notify.deposit.failed"
	case domain.KindWithdrawal:
		if ok {
			return domain.EventWithdrawalCompleted, "notify.withdrawal.completed"
		}
		return domain.EventWithdrawalFailed, "notify.withdrawal.failed"
	case domain.KindPayout:
		if ok {
			return domain.EventPayoutCompleted, "notify.payout.completed"
		}
		return domain.EventPayoutFailed, "notify.payout.failed"
	case domain.KindRefund:
		if ok {
			return domain.EventRefundCompleted, "notify.refund.completed"
		}
		return domain.EventRefundFailed, "notify.refund.failed"
	}
	return "", ""
}

// billingFor fills missing billing fields from the user record.
func (s *TransactionService) billingFor(ctx context.Context, userID uint, b payment.Billing) (payment.Billing, error) {
	if b.Email != "" && b.FirstName != "" {
		return b, nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return b, err
	}
	if b.FirstName == "" {
		b.FirstName = u.FirstName
	}
	if b.LastName == "" {
		b.LastName = u.LastName
	}
	if b.Email == "" {
		b.Email = u.Email
	}
	if b.Phone == "" {
		b.Phone = u.Phone
	}
	return b, nil
}

func (s *TransactionService) callbackURL(provider string) string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/api/v1/webhooks/" + provider
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &domain.ValidationError{Field: "amount", Reason: "at most 2 decimal places"}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
