package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAuth means the provider refused our credentials.
	ErrAuth = errors.New("payment provider authentication failed")
	// ErrRejected means the provider declined the operation.
	ErrRejected                  = errors.New("payment provider rejected the request")
	ErrInsufficientRemoteBalance = errors.New("insufficient balance at payment provider")
	// ErrUnsupported is returned when an adapter lacks the requested capability.
	ErrUnsupported      = errors.New("operation not supported by payment provider")
	ErrInvalidSignature = errors.New("invalid callback signature")
	ErrMalformed        = errors.New("malformed callback payload")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

// ProviderError wraps one of the sentinel errors with what the provider said.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Provider, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Outcome is the canonical result a callback or status poll reports.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomePending means the provider has not decided yet; nothing to finalize.
	OutcomePending Outcome = "pending"
)

// Token is a provider access token. A zero ExpiresAt never expires.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type DepositRequest struct {
	Reference   string // our transaction reference, sent as merchant order id
	Amount      decimal.Decimal
	Currency    string
	Billing     Billing
	CallbackURL string
	ReturnURL   string
}

type DepositResult struct {
	ExternalRef string
	RedirectURL string
	Metadata    map[string]string
}

// Destination is where a payout lands: an email account or a bank account.
type Destination struct {
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	IBAN            string `json:"iban,omitempty"`
	BeneficiaryName string `json:"beneficiary_name,omitempty"`
	BankName        string `json:"bank_name,omitempty"`
	SwiftCode       string `json:"swift_code,omitempty"`
}

type PayoutRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Destination Destination
	Note        string
	CallbackURL string
}

type PayoutResult struct {
	ExternalRef string
	Status      string
	Raw         json.RawMessage
	Metadata    map[string]string
}

type RefundRequest struct {
	Reference     string
	ExternalRef   string
	ProviderTxnID string // Paymob refunds by transaction id, not order id
	Amount        decimal.Decimal
	Currency      string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// CallbackResult is a provider callback normalized to (externalRef, outcome).
type CallbackResult struct {
	ExternalRef   string
	Outcome       Outcome
	Event         string
	ProviderTxnID string
	Message       string
}

// Adapter is the contract every payment processor implements. Optional
// capabilities live in Depositor, Payouter, Refunder and StatusChecker.
type Adapter interface {
	Name() string
	Authenticate(ctx context.Context) (Token, error)
	// VerifyCallback checks the provider signature before the payload is trusted.
	VerifyCallback(raw []byte, header http.Header, query url.Values) error
	// ParseCallback must not do I/O and must ignore unknown fields.
	ParseCallback(raw []byte) (*CallbackResult, error)
}

type Depositor interface {
	InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error)
}

type Payouter interface {
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type StatusChecker interface {
	Status(ctx context.Context, externalRef string) (Outcome, error)
}

// RefundStatusChecker looks up a refund by the id returned from Refund.
type RefundStatusChecker interface {
	RefundStatus(ctx context.Context, refundID string) (Outcome, error)
}

// PayoutCurrency is implemented by adapters that pay out in one configured currency.
type PayoutCurrency interface {
	PayoutCurrency() string
}

type Capability string

const (
	CapDeposit Capability = "deposit"
	CapPayout  Capability = "payout"
	CapRefund  Capability = "refund"
	CapStatus  Capability = "status"
)

// Supports reports whether a implements the capability.
func Supports(a Adapter, c Capability) bool {
	var ok bool
	switch c {
	case CapDeposit:
		_, ok = a.(Depositor)
	case CapPayout:
		_, ok = a.(Payouter)
	case CapRefund:
		_, ok = a.(Refunder)
	case CapStatus:
		_, ok = a.(StatusChecker)
	}
	return ok
}

// Capabilities lists what a supports, in a stable order.
func Capabilities(a Adapter) []Capability {
	var out []Capability
	for _, c := range []Capability{CapDeposit, CapPayout, CapRefund, CapStatus} {
		if Supports(a, c) {
			out = append(out, c)
		}
	}
	return out
}

// MinorUnits converts an amount to the integer minor units a provider expects.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(int32(currencyExponent(currency))).Round(0).IntPart()
}

// FormatAmount renders amount with the currency's number of decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(int32(currencyExponent(currency)))
}

func currencyExponent(currency string) int {
	switch currency {
	case "KWD", "BHD", "OMR", "JOD":
		return 3
	case "JPY":
		return 0
	}
	return 2
}
