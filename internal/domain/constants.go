package domain

const (
	RoleCustomer = "CUSTOMER"
	RoleWorker   = "WORKER"
	RoleDriver   = "DRIVER"
	RoleStore    = "STORE"
	RoleAdmin    = "ADMIN"
)

// TransactionKind is what a transaction does to a wallet once completed.
type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
	KindPayout     TransactionKind = "payout"
	KindRefund     TransactionKind = "refund"
)

// Debits reports whether a completed transaction of this kind lowers the balance.
func (k TransactionKind) Debits() bool {
	return k == KindWithdrawal || k == KindPayout || k == KindRefund
}

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BalanceSource names where the spendable amount of a payout comes from.
type BalanceSource string

const (
	SourceWallet   BalanceSource = "wallet"
	SourceEarnings BalanceSource = "earnings"
)

const (
	ProviderPaymob = "paymob"
	ProviderPayPal = "paypal"
	ProviderTap    = "tap"
	ProviderStub   = "stub"
)

// Notification events pushed on the user channel.
const (
	EventDepositCompleted    = "wallet.deposit.completed"
	EventDepositFailed       = "wallet.deposit.failed"
	EventWithdrawalCompleted = "wallet.withdrawal.completed"
	EventWithdrawalFailed    = "wallet.withdrawal.failed"
	EventPayoutCompleted     = "payout.completed"
	EventPayoutFailed        = "payout.failed"
	EventRefundCompleted     = "wallet.refund.completed"
	EventRefundFailed        = "wallet.refund.failed"
)

const DefaultCurrency = "EGP"
