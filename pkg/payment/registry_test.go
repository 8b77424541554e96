package payment

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	paymob := NewPaymobProvider(PaymobConfig{}, nil, nil)
	paypal := NewPayPalProvider(PayPalConfig{}, nil)
	tap := NewTapProvider(TapConfig{}, nil)
	r := NewRegistry(paymob, paypal, tap)

	assert.Equal(t, []string{"paymob", "paypal", "tap"}, r.Names())

	require.NoError(t, r.SetDefault(PurposeDeposit, "paymob"))
	require.NoError(t, r.SetDefault(PurposePayout, "paypal"))
	require.NoError(t, r.SetDefault(PurposeWithdrawal, "tap"))

	assert.ErrorIs(t, r.SetDefault(PurposeDeposit, "paypal"), ErrUnsupported)
	assert.ErrorIs(t, r.SetDefault(PurposePayout, "paymob"), ErrUnsupported)
	assert.ErrorIs(t, r.SetDefault(PurposePayout, "nope"), ErrUnknownProvider)

	a, _, err := r.Depositor("")
	require.NoError(t, err)
	assert.Equal(t, "paymob", a.Name())

	a, _, err = r.Payouter(PurposeWithdrawal, "")
	require.NoError(t, err)
	assert.Equal(t, "tap", a.Name())

	_, _, err = r.Depositor("paypal")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, _, err = r.Payouter(PurposePayout, "paymob")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRegistryMissingDefault(t *testing.T) {
	r := NewRegistry()
	_, err := r.Default(PurposePayout)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider("s3")
	ctx := context.Background()

	po, err := p.InitiatePayout(ctx, PayoutRequest{Reference: "r", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	outcome, err := p.Status(ctx, po.ExternalRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)

	p.Settle(po.ExternalRef, OutcomeSucceeded)
	outcome, err = p.Status(ctx, po.ExternalRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)

	_, err = p.Status(ctx, "unknown")
	assert.ErrorIs(t, err, ErrRejected)

	body := []byte(`{"reference":"` + po.ExternalRef + `","status":"FAILED"}`)
	h := http.Header{}
	h.Set("X-Webhook-Signature", SignSHA256("s3", body))
	require.NoError(t, p.VerifyCallback(body, h, nil))
	assert.ErrorIs(t, p.VerifyCallback(body, http.Header{}, nil), ErrInvalidSignature)

	res, err := p.ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	_, err = p.ParseCallback([]byte(`{"reference":"x","status":"weird"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAmountHelpers(t *testing.T) {
	assert.Equal(t, int64(10050), MinorUnits(decimal.RequireFromString("100.50"), "EGP"))
	assert.Equal(t, int64(1250), MinorUnits(decimal.RequireFromString("1.25"), "KWD"))
	assert.Equal(t, int64(100), MinorUnits(decimal.NewFromInt(100), "JPY"))
	assert.Equal(t, "1.250", FormatAmount(decimal.RequireFromString("1.25"), "KWD"))
	assert.Equal(t, "7.00", FormatAmount(decimal.NewFromInt(7), "USD"))
}
