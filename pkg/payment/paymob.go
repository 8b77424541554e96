package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const paymobTokenKey = "paymob:auth_token"

// Paymob tokens live one hour; keep a margin so a cached token is never used past expiry.
const paymobTokenTTL = 55 * time.Minute

type PaymobConfig struct {
	BaseURL       string
	IframeBaseURL string
	APIKey        string
	IntegrationID int
	IframeID      string
	HMACSecret    string
	Currency      string
	Timeout       time.Duration
}

// PaymobProvider is the card-redirect gateway: auth token, order, payment key,
// then the customer pays inside the hosted iframe. It takes deposits and refunds, never payouts.
type PaymobProvider struct {
	cfg   PaymobConfig
	api   apiClient
	cache TokenCache
	now   func() time.Time
}

func NewPaymobProvider(cfg PaymobConfig, cache TokenCache, log *zap.Logger) *PaymobProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://accept.paymob.com/api"
	}
	if cfg.IframeBaseURL == "" {
		cfg.IframeBaseURL = "https://accept.paymob.com/api/acceptance/iframes"
	}
	if cfg.Currency == "" {
		cfg.Currency = "EGP"
	}
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &PaymobProvider{
		cfg:   cfg,
		api:   newAPIClient("paymob", cfg.BaseURL, cfg.Timeout, log),
		cache: cache,
		now:   time.Now,
	}
}

func (p *PaymobProvider) Name() string { return "paymob" }

func (p *PaymobProvider) Authenticate(ctx context.Context) (Token, error) {
	if tok, found := p.cache.Get(ctx, paymobTokenKey); found {
		return Token{Value: tok}, nil
	}
	status, body, err := p.api.do(ctx, http.MethodPost, "/auth/tokens", nil, map[string]string{"api_key": p.cfg.APIKey})
	if err != nil {
		return Token{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return Token{}, &ProviderError{Provider: p.Name(), Op: "auth", StatusCode: status, Message: string(body), Err: ErrAuth}
	}
	if !ok(status) {
		return Token{}, &ProviderError{Provider: p.Name(), Op: "auth", StatusCode: status, Message: string(body), Err: ErrRejected}
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Token{}, err
	}
	if out.Token == "" {
		return Token{}, &ProviderError{Provider: p.Name(), Op: "auth", Message: "empty token", Err: ErrAuth}
	}
	p.cache.Set(ctx, paymobTokenKey, out.Token, paymobTokenTTL)
	return Token{Value: out.Token, ExpiresAt: p.now().Add(paymobTokenTTL)}, nil
}

type paymobOrderReq struct {
	AuthToken       string        `json:"auth_token"`
	DeliveryNeeded  bool          `json:"delivery_needed"`
	AmountCents     string        `json:"amount_cents"`
	Currency        string        `json:"currency"`
	MerchantOrderID string        `json:"merchant_order_id"`
	Items           []interface{} `json:"items"`
}

type paymobBilling struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Apartment   string `json:"apartment"`
	Floor       string `json:"floor"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	City        string `json:"city"`
	Country     string `json:"country"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
}

type paymobKeyReq struct {
	AuthToken     string        `json:"auth_token"`
	AmountCents   string        `json:"amount_cents"`
	Expiration    int           `json:"expiration"`
	OrderID       int64         `json:"order_id"`
	BillingData   paymobBilling `json:"billing_data"`
	Currency      string        `json:"currency"`
	IntegrationID int           `json:"integration_id"`
}

// InitiateDeposit creates the remote order and payment key. The external
// reference is Paymob's order id, which every later callback carries.
func (p *PaymobProvider) InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	cents := strconv.FormatInt(MinorUnits(req.Amount, currency), 10)

	status, body, err := p.api.do(ctx, http.MethodPost, "/ecommerce/orders", nil, paymobOrderReq{
		AuthToken:       tok.Value,
		AmountCents:     cents,
		Currency:        currency,
		MerchantOrderID: req.Reference,
		Items:           []interface{}{},
	})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("create order", status, body)
	}
	var order struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, &ProviderError{Provider: p.Name(), Op: "create order", Message: "missing order id", Err: ErrRejected}
	}

	status, body, err = p.api.do(ctx, http.MethodPost, "/acceptance/payment_keys", nil, paymobKeyReq{
		AuthToken:     tok.Value,
		AmountCents:   cents,
		Expiration:    3600,
		OrderID:       order.ID,
		BillingData:   paymobBillingFrom(req.Billing),
		Currency:      currency,
		IntegrationID: p.cfg.IntegrationID,
	})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("payment key", status, body)
	}
	var key struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, err
	}
	orderID := strconv.FormatInt(order.ID, 10)
	return &DepositResult{
		ExternalRef: orderID,
		RedirectURL: fmt.Sprintf("%s/%s?payment_token=%s", p.cfg.IframeBaseURL, p.cfg.IframeID, url.QueryEscape(key.Token)),
		Metadata:    map[string]string{"paymob_order_id": orderID},
	}, nil
}

// Refund refunds a captured Paymob transaction (not the order).
func (p *PaymobProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.ProviderTxnID == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "refund", Message: "missing paymob transaction id", Err: ErrRejected}
	}
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	status, body, err := p.api.do(ctx, http.MethodPost, "/acceptance/void_refund/refund", nil, map[string]interface{}{
		"auth_token":     tok.Value,
		"transaction_id": req.ProviderTxnID,
		"amount_cents":   MinorUnits(req.Amount, currency),
	})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("refund", status, body)
	}
	var out struct {
		ID      int64 `json:"id"`
		Success bool  `json:"success"`
		Pending bool  `json:"pending"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if !out.Success && !out.Pending {
		return nil, &ProviderError{Provider: p.Name(), Op: "refund", StatusCode: status, Message: "refund declined", Err: ErrRejected}
	}
	st := "SUCCEEDED"
	if out.Pending {
		st = "PENDING"
	}
	return &RefundResult{RefundID: strconv.FormatInt(out.ID, 10), Status: st}, nil
}

// Status asks Paymob for the latest transaction on the order.
func (p *PaymobProvider) Status(ctx context.Context, externalRef string) (Outcome, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	orderID, err := strconv.ParseInt(externalRef, 10, 64)
	if err != nil {
		return "", fmt.Errorf("paymob order id %q: %w", externalRef, err)
	}
	status, body, err := p.api.do(ctx, http.MethodPost, "/ecommerce/orders/transaction_inquiry", nil, map[string]interface{}{
		"auth_token": tok.Value,
		"order_id":   orderID,
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return OutcomePending, nil
	}
	if !ok(status) {
		return "", p.classify("inquiry", status, body)
	}
	var out struct {
		Success bool `json:"success"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return paymobOutcome(out.Success, out.Pending), nil
}

// RefundStatus reads the refund transaction Refund returned. Paymob keys
// refund transactions by their own id, not by the order.
func (p *PaymobProvider) RefundStatus(ctx context.Context, refundID string) (Outcome, error) {
	if _, err := strconv.ParseInt(refundID, 10, 64); err != nil {
		return "", fmt.Errorf("paymob transaction id %q: %w", refundID, err)
	}
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	status, body, err := p.api.do(ctx, http.MethodGet, "/acceptance/transactions/"+refundID, bearer(tok.Value), nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return OutcomePending, nil
	}
	if !ok(status) {
		return "", p.classify("refund status", status, body)
	}
	var out struct {
		Success bool `json:"success"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return paymobOutcome(out.Success, out.Pending), nil
}

// paymobHMACFields is the order Paymob concatenates transaction fields in before signing.
var paymobHMACFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// VerifyCallback recomputes Paymob's HMAC-SHA512 over the transaction object
// and compares it with the hmac query parameter.
func (p *PaymobProvider) VerifyCallback(raw []byte, _ http.Header, query url.Values) error {
	if p.cfg.HMACSecret == "" {
		return &ProviderError{Provider: p.Name(), Op: "verify", Message: "hmac secret not configured", Err: ErrInvalidSignature}
	}
	obj, err := paymobObject(raw)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, f := range paymobHMACFields {
		sb.WriteString(lookupString(obj, f))
	}
	if !equalSignature(query.Get("hmac"), SignSHA512(p.cfg.HMACSecret, []byte(sb.String()))) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *PaymobProvider) ParseCallback(raw []byte) (*CallbackResult, error) {
	obj, err := paymobObject(raw)
	if err != nil {
		return nil, err
	}
	txnID := lookupString(obj, "id")
	res := &CallbackResult{
		ExternalRef:   lookupString(obj, "order.id"),
		Outcome:       paymobOutcome(lookupString(obj, "success") == "true", lookupString(obj, "pending") == "true"),
		Event:         "TRANSACTION",
		ProviderTxnID: txnID,
		Message:       lookupString(obj, "data.message"),
	}
	switch {
	case lookupString(obj, "is_refund") == "true":
		// a refund shares the deposit's order; it is tracked by its own transaction id
		res.Event = "REFUND"
		res.ExternalRef = txnID
	case lookupString(obj, "is_refunded") == "true" || lookupString(obj, "is_voided") == "true":
		res.Event = "REFUNDED"
	}
	if res.ExternalRef == "" {
		return nil, fmt.Errorf("%w: order.id missing", ErrMalformed)
	}
	return res, nil
}

func paymobOutcome(success, pending bool) Outcome {
	switch {
	case pending:
		return OutcomePending
	case success:
		return OutcomeSucceeded
	default:
		return OutcomeFailed
	}
}

// paymobObject accepts both the wrapped {"type":..,"obj":{..}} webhook and a bare transaction object.
func paymobObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var envelope map[string]interface{}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if obj, isMap := envelope["obj"].(map[string]interface{}); isMap {
		return obj, nil
	}
	return envelope, nil
}

// lookupString walks a dotted path and renders the leaf the way Paymob signs it.
func lookupString(m map[string]interface{}, path string) string {
	var cur interface{} = m
	for _, part := range strings.Split(path, ".") {
		node, isMap := cur.(map[string]interface{})
		if !isMap {
			return ""
		}
		cur = node[part]
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func (p *PaymobProvider) classify(op string, status int, body []byte) error {
	var out struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &out)
	msg := out.Detail
	if msg == "" {
		msg = out.Message
	}
	if msg == "" {
		msg = string(body)
	}
	kind := ErrRejected
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = ErrAuth
	}
	return &ProviderError{Provider: p.Name(), Op: op, StatusCode: status, Message: msg, Err: kind}
}

func paymobBillingFrom(b Billing) paymobBilling {
	na := func(s string) string {
		if s == "" {
			return "NA"
		}
		return s
	}
	return paymobBilling{
		FirstName:   na(b.FirstName),
		LastName:    na(b.LastName),
		Email:       na(b.Email),
		PhoneNumber: na(b.Phone),
		Apartment:   "NA",
		Floor:       "NA",
		Street:      "NA",
		Building:    "NA",
		City:        "NA",
		Country:     "NA",
		State:       "NA",
		PostalCode:  "NA",
	}
}
