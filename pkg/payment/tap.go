package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TapConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
	ReturnURL string
	Timeout   time.Duration
}

// TapProvider is the hybrid gateway: REST charges for deposits, bank payouts,
// refunds and status lookups, all with the secret key as bearer token.
type TapProvider struct {
	cfg TapConfig
	api apiClient
}

func NewTapProvider(cfg TapConfig, log *zap.Logger) *TapProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tap.company"
	}
	if cfg.Currency == "" {
		cfg.Currency = "KWD"
	}
	return &TapProvider{cfg: cfg, api: newAPIClient("tap", cfg.BaseURL, cfg.Timeout, log)}
}

func (p *TapProvider) Name() string { return "tap" }

// Authenticate returns the static secret key; Tap has no token exchange.
func (p *TapProvider) Authenticate(_ context.Context) (Token, error) {
	if p.cfg.SecretKey == "" {
		return Token{}, &ProviderError{Provider: p.Name(), Op: "auth", Message: "secret key not configured", Err: ErrAuth}
	}
	return Token{Value: p.cfg.SecretKey}, nil
}

type tapReference struct {
	Transaction string `json:"transaction,omitempty"`
	Order       string `json:"order,omitempty"`
	Gateway     string `json:"gateway,omitempty"`
	Payment     string `json:"payment,omitempty"`
}

type tapPhone struct {
	CountryCode string `json:"country_code,omitempty"`
	Number      string `json:"number,omitempty"`
}

type tapCustomer struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     *tapPhone `json:"phone,omitempty"`
}

type tapURL struct {
	URL string `json:"url"`
}

type tapChargeReq struct {
	Amount            json.Number     `json:"amount"`
	Currency          string          `json:"currency"`
	CustomerInitiated bool            `json:"customer_initiated"`
	ThreeDSecure      bool            `json:"threeDSecure"`
	Description       string          `json:"description,omitempty"`
	Reference         tapReference    `json:"reference"`
	Customer          tapCustomer     `json:"customer"`
	Source            struct {
		ID string `json:"id"`
	} `json:"source"`
	Post     *tapURL `json:"post,omitempty"`
	Redirect *tapURL `json:"redirect,omitempty"`
}

// tapObject is the shape shared by charges, payouts and their webhooks.
type tapObject struct {
	ID          string          `json:"id"`
	Object      string          `json:"object"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reference   tapReference    `json:"reference"`
	Transaction struct {
		URL     string      `json:"url"`
		Created json.Number `json:"created"`
	} `json:"transaction"`
	Response struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"response"`
}

func (p *TapProvider) InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	body := tapChargeReq{
		Amount:            json.Number(FormatAmount(req.Amount, currency)),
		Currency:          currency,
		CustomerInitiated: true,
		ThreeDSecure:      true,
		Description:       "Wallet top-up",
		Reference:         tapReference{Transaction: req.Reference, Order: req.Reference},
		Customer: tapCustomer{
			FirstName: req.Billing.FirstName,
			LastName:  req.Billing.LastName,
			Email:     req.Billing.Email,
		},
	}
	if req.Billing.Phone != "" {
		body.Customer.Phone = &tapPhone{Number: req.Billing.Phone}
	}
	if body.Customer.FirstName == "" {
		body.Customer.FirstName = "Customer"
	}
	body.Source.ID = "src_all"
	if req.CallbackURL != "" {
		body.Post = &tapURL{URL: req.CallbackURL}
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = p.cfg.ReturnURL
	}
	if returnURL != "" {
		body.Redirect = &tapURL{URL: returnURL}
	}
	status, raw, err := p.api.do(ctx, http.MethodPost, "/v2/charges", bearer(tok.Value), body)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("charge", status, raw)
	}
	var out tapObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "charge", StatusCode: status, Message: "missing charge id", Err: ErrRejected}
	}
	return &DepositResult{
		ExternalRef: out.ID,
		RedirectURL: out.Transaction.URL,
		Metadata:    map[string]string{"tap_charge_id": out.ID},
	}, nil
}

type tapPayoutReq struct {
	Amount      json.Number     `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Reference   tapReference    `json:"reference"`
	Destination struct {
		IBAN            string `json:"iban"`
		BeneficiaryName string `json:"beneficiary_name"`
		BankName        string `json:"bank_name,omitempty"`
		SwiftCode       string `json:"swift_code,omitempty"`
	} `json:"destination"`
	Post *tapURL `json:"post,omitempty"`
}

// InitiatePayout transfers to a bank account; IBAN and beneficiary are required.
func (p *TapProvider) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Destination.IBAN == "" || req.Destination.BeneficiaryName == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "payout", Message: "iban and beneficiary name required", Err: ErrRejected}
	}
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	body := tapPayoutReq{
		Amount:      json.Number(FormatAmount(req.Amount, currency)),
		Currency:    currency,
		Description: req.Note,
		Reference:   tapReference{Transaction: req.Reference},
	}
	body.Destination.IBAN = req.Destination.IBAN
	body.Destination.BeneficiaryName = req.Destination.BeneficiaryName
	body.Destination.BankName = req.Destination.BankName
	body.Destination.SwiftCode = req.Destination.SwiftCode
	if req.CallbackURL != "" {
		body.Post = &tapURL{URL: req.CallbackURL}
	}
	status, raw, err := p.api.do(ctx, http.MethodPost, "/v2/payouts", bearer(tok.Value), body)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("payout", status, raw)
	}
	var out tapObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "payout", StatusCode: status, Message: "missing payout id", Err: ErrRejected}
	}
	if tapOutcome(out.Status) == OutcomeFailed {
		return nil, &ProviderError{Provider: p.Name(), Op: "payout", StatusCode: status, Message: out.Response.Message, Err: ErrRejected}
	}
	return &PayoutResult{
		ExternalRef: out.ID,
		Status:      out.Status,
		Raw:         json.RawMessage(raw),
		Metadata:    map[string]string{"tap_payout_id": out.ID},
	}, nil
}

func (p *TapProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	status, raw, err := p.api.do(ctx, http.MethodPost, "/v2/refunds", bearer(tok.Value), map[string]interface{}{
		"charge_id": req.ExternalRef,
		"amount":    json.Number(FormatAmount(req.Amount, currency)),
		"currency":  currency,
		"reason":    "requested_by_customer",
		"reference": map[string]string{"merchant": req.Reference},
	})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("refund", status, raw)
	}
	var out tapObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	switch tapOutcome(out.Status) {
	case OutcomeFailed:
		return nil, &ProviderError{Provider: p.Name(), Op: "refund", StatusCode: status, Message: out.Response.Message, Err: ErrRejected}
	case OutcomePending:
		return &RefundResult{RefundID: out.ID, Status: "PENDING"}, nil
	}
	return &RefundResult{RefundID: out.ID, Status: "SUCCEEDED"}, nil
}

// Status picks the charges, payouts or refunds endpoint from the id prefix.
func (p *TapProvider) Status(ctx context.Context, externalRef string) (Outcome, error) {
	path := "/v2/charges/"
	switch {
	case strings.HasPrefix(externalRef, "po_"):
		path = "/v2/payouts/"
	case strings.HasPrefix(externalRef, "re_"):
		path = "/v2/refunds/"
	}
	return p.lookup(ctx, path, externalRef)
}

func (p *TapProvider) RefundStatus(ctx context.Context, refundID string) (Outcome, error) {
	return p.lookup(ctx, "/v2/refunds/", refundID)
}

func (p *TapProvider) PayoutCurrency() string { return p.cfg.Currency }

func (p *TapProvider) lookup(ctx context.Context, path, id string) (Outcome, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	status, raw, err := p.api.do(ctx, http.MethodGet, path+url.PathEscape(id), bearer(tok.Value), nil)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", p.classify("status", status, raw)
	}
	var out tapObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return tapOutcome(out.Status), nil
}

// VerifyCallback recomputes Tap's hashstring header: HMAC-SHA256, keyed with
// the secret key, over the id, amount, currency, references, status and creation time.
func (p *TapProvider) VerifyCallback(raw []byte, header http.Header, _ url.Values) error {
	if p.cfg.SecretKey == "" {
		return &ProviderError{Provider: p.Name(), Op: "verify", Message: "secret key not configured", Err: ErrInvalidSignature}
	}
	var obj tapObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !equalSignature(header.Get("hashstring"), SignSHA256(p.cfg.SecretKey, []byte(tapHashString(obj)))) {
		return ErrInvalidSignature
	}
	return nil
}

func tapHashString(obj tapObject) string {
	return "x_id" + obj.ID +
		"x_amount" + FormatAmount(obj.Amount, obj.Currency) +
		"x_currency" + obj.Currency +
		"x_gateway_reference" + obj.Reference.Gateway +
		"x_payment_reference" + obj.Reference.Payment +
		"x_status" + obj.Status +
		"x_created" + obj.Transaction.Created.String()
}

func (p *TapProvider) ParseCallback(raw []byte) (*CallbackResult, error) {
	var obj tapObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if obj.ID == "" {
		return nil, fmt.Errorf("%w: id missing", ErrMalformed)
	}
	event := obj.Object
	if event == "" {
		event = "charge"
	}
	return &CallbackResult{
		ExternalRef:   obj.ID,
		Outcome:       tapOutcome(obj.Status),
		Event:         event,
		ProviderTxnID: obj.Reference.Payment,
		Message:       obj.Response.Message,
	}, nil
}

func tapOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "CAPTURED", "PAID", "SUCCEEDED", "REFUNDED":
		return OutcomeSucceeded
	case "INITIATED", "IN_PROGRESS", "PENDING", "AUTHORIZED", "":
		return OutcomePending
	}
	return OutcomeFailed
}

func (p *TapProvider) classify(op string, status int, body []byte) error {
	var out struct {
		Errors []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(body, &out)
	msg := string(body)
	kind := ErrRejected
	if len(out.Errors) > 0 {
		msg = out.Errors[0].Description
		if strings.Contains(strings.ToLower(msg), "insufficient") {
			kind = ErrInsufficientRemoteBalance
		}
	}
	if status == http.StatusUnauthorized {
		kind = ErrAuth
	}
	return &ProviderError{Provider: p.Name(), Op: op, StatusCode: status, Message: msg, Err: kind}
}
