package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayPalServer(t *testing.T, payout http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, _ := r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		if user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"pp-token","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v1/payments/payouts", payout)
	mux.HandleFunc("/v1/payments/payouts/BATCH-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"SUCCESS"},"items":[{"payout_item_id":"ITEM-1","transaction_status":"SUCCESS"}]}`))
	})
	mux.HandleFunc("/v1/payments/payouts/BATCH-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-2","batch_status":"SUCCESS"},"items":[{"payout_item_id":"ITEM-2","transaction_status":"RETURNED"}]}`))
	})
	mux.HandleFunc("/v1/payments/payouts/BATCH-3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-3","batch_status":"SUCCESS"},"items":[{"payout_item_id":"ITEM-3","transaction_status":"UNCLAIMED"}]}`))
	})
	mux.HandleFunc("/v1/payments/payouts/BATCH-4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-4","batch_status":"SUCCESS"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func TestPayPalInitiatePayout(t *testing.T) {
	srv, tokenCalls := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pp-token", r.Header.Get("Authorization"))
		var in paypalPayoutReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "TXN-9", in.SenderBatchHeader.SenderBatchID)
		require.Len(t, in.Items, 1)
		assert.Equal(t, "worker@example.com", in.Items[0].Receiver)
		assert.Equal(t, "25.00", in.Items[0].Amount.Value)
		assert.Equal(t, "USD", in.Items[0].Amount.Currency)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"PENDING","sender_batch_header":{"sender_batch_id":"TXN-9"}}}`))
	})
	p := NewPayPalProvider(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"}, nil)

	res, err := p.InitiatePayout(context.Background(), PayoutRequest{
		Reference:   "TXN-9",
		Amount:      decimal.NewFromInt(25),
		Destination: Destination{Email: "worker@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "BATCH-1", res.ExternalRef)
	assert.Equal(t, "PENDING", res.Status)
	assert.Equal(t, "TXN-9", res.Metadata["sender_batch_id"])

	outcome, err := p.Status(context.Background(), "BATCH-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "token is reused until expiry")
}

func TestPayPalStatusFollowsPayoutItem(t *testing.T) {
	srv, _ := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {})
	p := NewPayPalProvider(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"}, nil)
	ctx := context.Background()

	for batch, want := range map[string]Outcome{
		"BATCH-2": OutcomeFailed,
		"BATCH-3": OutcomePending,
		"BATCH-4": OutcomePending,
	} {
		outcome, err := p.Status(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, want, outcome, batch)
	}
	assert.Equal(t, "USD", p.PayoutCurrency())
}

func TestPayPalPayoutRequiresEmail(t *testing.T) {
	p := NewPayPalProvider(PayPalConfig{BaseURL: "http://127.0.0.1:0"}, nil)
	_, err := p.InitiatePayout(context.Background(), PayoutRequest{Reference: "x", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPayPalInsufficientFunds(t *testing.T) {
	srv, _ := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"INSUFFICIENT_FUNDS","message":"Sender does not have sufficient funds."}`))
	})
	p := NewPayPalProvider(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"}, nil)

	_, err := p.InitiatePayout(context.Background(), PayoutRequest{
		Reference:   "TXN-10",
		Amount:      decimal.NewFromInt(1000),
		Destination: Destination{Email: "worker@example.com"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientRemoteBalance)
}

func TestPayPalBadCredentials(t *testing.T) {
	srv, _ := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("payout must not be called without a token")
	})
	p := NewPayPalProvider(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "wrong"}, nil)

	_, err := p.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestPayPalCallback(t *testing.T) {
	p := NewPayPalProvider(PayPalConfig{WebhookSecret: "hook"}, nil)
	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.PAYOUTSBATCH.SUCCESS","resource":{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"SUCCESS"}}}`)

	h := http.Header{}
	h.Set("X-Webhook-Signature", SignSHA256("hook", body))
	require.NoError(t, p.VerifyCallback(body, h, nil))

	h.Set("X-Webhook-Signature", SignSHA256("nope", body))
	assert.ErrorIs(t, p.VerifyCallback(body, h, nil), ErrInvalidSignature)

	// a processed batch is not a delivered payout
	res, err := p.ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "BATCH-1", res.ExternalRef)
	assert.Equal(t, OutcomePending, res.Outcome)

	res, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.PAYOUTS-ITEM.SUCCEEDED","resource":{"payout_batch_id":"BATCH-1","payout_item_id":"ITEM-1","transaction_status":"SUCCESS"}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)

	res, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.PAYOUTS-ITEM.UNCLAIMED","resource":{"payout_batch_id":"BATCH-1","payout_item_id":"ITEM-1","transaction_status":"UNCLAIMED"}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)

	res, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.PAYOUTS-ITEM.FAILED","resource":{"payout_batch_id":"BATCH-2","payout_item_id":"ITEM-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "BATCH-2", res.ExternalRef)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "ITEM-1", res.ProviderTxnID)

	res, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.PAYOUTSBATCH.PROCESSING","resource":{"batch_header":{"payout_batch_id":"BATCH-3"}}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)
}

func TestPayPalCapabilities(t *testing.T) {
	p := NewPayPalProvider(PayPalConfig{}, nil)
	assert.Equal(t, []Capability{CapPayout, CapStatus}, Capabilities(p))
}
