package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type PayPalConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	Currency      string
	EmailSubject  string
	Timeout       time.Duration
}

// PayPalProvider is the payout-only gateway: batch payouts to a recipient
// email. Deposits are not offered through it.
type PayPalProvider struct {
	cfg    PayPalConfig
	api    apiClient
	tokens oauth2.TokenSource
}

func NewPayPalProvider(cfg PayPalConfig, log *zap.Logger) *PayPalProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.EmailSubject == "" {
		cfg.EmailSubject = "You have a payout!"
	}
	api := newAPIClient("paypal", cfg.BaseURL, cfg.Timeout, log)
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// The token source caches until the expiry PayPal returns and refetches after it.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, api.http)
	return &PayPalProvider{cfg: cfg, api: api, tokens: cc.TokenSource(tokenCtx)}
}

func (p *PayPalProvider) Name() string { return "paypal" }

func (p *PayPalProvider) Authenticate(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	tok, err := p.tokens.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return Token{}, &ProviderError{Provider: p.Name(), Op: "auth", StatusCode: status, Message: re.ErrorDescription, Err: ErrAuth}
		}
		return Token{}, err
	}
	return Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

type paypalAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paypalPayoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        paypalAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type paypalPayoutReq struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject"`
		EmailMessage  string `json:"email_message,omitempty"`
	} `json:"sender_batch_header"`
	Items []paypalPayoutItem `json:"items"`
}

type paypalBatchHeader struct {
	PayoutBatchID     string `json:"payout_batch_id"`
	BatchStatus       string `json:"batch_status"`
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
	} `json:"sender_batch_header"`
}

// InitiatePayout sends a single-item batch to the destination email. The
// external reference is the payout_batch_id PayPal assigns.
func (p *PayPalProvider) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	receiver := req.Destination.Email
	if receiver == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "payout", Message: "recipient email required", Err: ErrRejected}
	}
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	var body paypalPayoutReq
	body.SenderBatchHeader.SenderBatchID = req.Reference
	body.SenderBatchHeader.EmailSubject = p.cfg.EmailSubject
	body.SenderBatchHeader.EmailMessage = req.Note
	body.Items = []paypalPayoutItem{{
		RecipientType: "EMAIL",
		Amount:        paypalAmount{Value: FormatAmount(req.Amount, currency), Currency: currency},
		Receiver:      receiver,
		Note:          req.Note,
		SenderItemID:  req.Reference,
	}}
	status, raw, err := p.api.do(ctx, http.MethodPost, "/v1/payments/payouts", bearer(tok.Value), body)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, p.classify("payout", status, raw)
	}
	var out struct {
		BatchHeader paypalBatchHeader `json:"batch_header"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.BatchHeader.PayoutBatchID == "" {
		return nil, &ProviderError{Provider: p.Name(), Op: "payout", StatusCode: status, Message: "missing payout_batch_id", Err: ErrRejected}
	}
	return &PayoutResult{
		ExternalRef: out.BatchHeader.PayoutBatchID,
		Status:      out.BatchHeader.BatchStatus,
		Raw:         json.RawMessage(raw),
		Metadata: map[string]string{
			"payout_batch_id": out.BatchHeader.PayoutBatchID,
			"sender_batch_id": req.Reference,
		},
	}, nil
}

func (p *PayPalProvider) Status(ctx context.Context, externalRef string) (Outcome, error) {
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	status, raw, err := p.api.do(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(externalRef), bearer(tok.Value), nil)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", p.classify("payout status", status, raw)
	}
	var out struct {
		BatchHeader paypalBatchHeader `json:"batch_header"`
		Items       []struct {
			TransactionStatus string `json:"transaction_status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	// a processed batch says nothing about whether the money arrived; the item does
	if len(out.Items) > 0 {
		return paypalItemOutcome(out.Items[0].TransactionStatus), nil
	}
	return paypalBatchOutcome(out.BatchHeader.BatchStatus), nil
}

func (p *PayPalProvider) PayoutCurrency() string { return p.cfg.Currency }

// VerifyCallback checks the HMAC-SHA256 of the body sent by the webhook relay
// in X-Webhook-Signature.
func (p *PayPalProvider) VerifyCallback(raw []byte, header http.Header, _ url.Values) error {
	if p.cfg.WebhookSecret == "" {
		return &ProviderError{Provider: p.Name(), Op: "verify", Message: "webhook secret not configured", Err: ErrInvalidSignature}
	}
	if !equalSignature(header.Get("X-Webhook-Signature"), SignSHA256(p.cfg.WebhookSecret, raw)) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *PayPalProvider) ParseCallback(raw []byte) (*CallbackResult, error) {
	var evt struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Summary   string `json:"summary"`
		Resource  struct {
			BatchHeader       paypalBatchHeader `json:"batch_header"`
			PayoutBatchID     string            `json:"payout_batch_id"`
			TransactionStatus string            `json:"transaction_status"`
			PayoutItemID      string            `json:"payout_item_id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ref := evt.Resource.BatchHeader.PayoutBatchID
	if ref == "" {
		ref = evt.Resource.PayoutBatchID
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: payout_batch_id missing", ErrMalformed)
	}
	return &CallbackResult{
		ExternalRef:   ref,
		Outcome:       paypalEventOutcome(evt.EventType),
		Event:         evt.EventType,
		ProviderTxnID: evt.Resource.PayoutItemID,
		Message:       evt.Summary,
	}, nil
}

func paypalEventOutcome(eventType string) Outcome {
	switch eventType {
	case "PAYMENT.PAYOUTS-ITEM.SUCCEEDED":
		return OutcomeSucceeded
	case "PAYMENT.PAYOUTSBATCH.DENIED",
		"PAYMENT.PAYOUTS-ITEM.FAILED",
		"PAYMENT.PAYOUTS-ITEM.BLOCKED",
		"PAYMENT.PAYOUTS-ITEM.DENIED",
		"PAYMENT.PAYOUTS-ITEM.RETURNED",
		"PAYMENT.PAYOUTS-ITEM.REFUNDED",
		"PAYMENT.PAYOUTS-ITEM.CANCELED":
		return OutcomeFailed
	}
	return OutcomePending
}

// paypalBatchOutcome only recognizes batches that never paid anything.
func paypalBatchOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "DENIED", "CANCELED":
		return OutcomeFailed
	}
	return OutcomePending
}

// paypalItemOutcome maps a payout item's transaction_status. UNCLAIMED and
// ONHOLD stay pending until PayPal delivers or returns the funds.
func paypalItemOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return OutcomeSucceeded
	case "FAILED", "RETURNED", "BLOCKED", "REFUNDED", "REVERSED", "DENIED", "CANCELED":
		return OutcomeFailed
	}
	return OutcomePending
}

func (p *PayPalProvider) classify(op string, status int, body []byte) error {
	var out struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &out)
	msg := out.Message
	if msg == "" {
		msg = string(body)
	}
	kind := ErrRejected
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrAuth
	case out.Name == "INSUFFICIENT_FUNDS" || out.Name == "SENDER_INSUFFICIENT_FUNDS":
		kind = ErrInsufficientRemoteBalance
	}
	return &ProviderError{Provider: p.Name(), Op: op, StatusCode: status, Message: msg, Err: kind}
}
