package app

import (
	"fmt"

	"marketplace/config"
	"marketplace/internal/domain"
	"marketplace/pkg/payment"

	"go.uber.org/zap"
)

// NewRegistry registers every provider that has credentials. Outside
// production the stub provider stands in for any default that is not
// configured; next to real providers it needs a signing secret.
func NewRegistry(cfg *config.Config, tokens payment.TokenCache, log *zap.Logger) (*payment.Registry, error) {
	reg := payment.NewRegistry()
	if cfg.Paymob.APIKey != "" {
		reg.Register(payment.NewPaymobProvider(payment.PaymobConfig{
			BaseURL:       cfg.Paymob.BaseURL,
			IframeBaseURL: cfg.Paymob.IframeBaseURL,
			APIKey:        cfg.Paymob.APIKey,
			IntegrationID: cfg.Paymob.IntegrationID,
			IframeID:      cfg.Paymob.IframeID,
			HMACSecret:    cfg.Paymob.HMACSecret,
			Currency:      cfg.Payment.Currency,
			Timeout:       cfg.Payment.Timeout,
		}, tokens, log))
	}
	if cfg.PayPal.ClientID != "" {
		reg.Register(payment.NewPayPalProvider(payment.PayPalConfig{
			BaseURL:       cfg.PayPal.BaseURL,
			ClientID:      cfg.PayPal.ClientID,
			ClientSecret:  cfg.PayPal.ClientSecret,
			WebhookSecret: cfg.PayPal.WebhookSecret,
			Currency:      cfg.PayPal.Currency,
			Timeout:       cfg.Payment.Timeout,
		}, log))
	}
	if cfg.Tap.SecretKey != "" {
		reg.Register(payment.NewTapProvider(payment.TapConfig{
			BaseURL:   cfg.Tap.BaseURL,
			SecretKey: cfg.Tap.SecretKey,
			Currency:  cfg.Tap.Currency,
			ReturnURL: cfg.Payment.ReturnURL,
			Timeout:   cfg.Payment.Timeout,
		}, log))
	}
	switch {
	case cfg.IsProduction():
	case cfg.Payment.StubSecret == "" && len(reg.Names()) > 0:
		// an unsigned stub would accept forged callbacks next to real providers
		log.Warn("stub provider disabled: PAYMENT_STUB_SECRET is required when real providers are configured")
	default:
		reg.Register(payment.NewStubProvider(cfg.Payment.StubSecret))
	}
	_, stubErr := reg.Get(domain.ProviderStub)

	defaults := map[payment.Purpose]string{
		payment.PurposeDeposit:    cfg.Payment.DepositProvider,
		payment.PurposeWithdrawal: cfg.Payment.WithdrawalProvider,
		payment.PurposePayout:     cfg.Payment.PayoutProvider,
	}
	for purpose, name := range defaults {
		err := reg.SetDefault(purpose, name)
		if err == nil {
			continue
		}
		if cfg.IsProduction() || stubErr != nil {
			return nil, fmt.Errorf("%s provider: %w", purpose, err)
		}
		log.Warn("provider not configured; using stub", zap.String("purpose", string(purpose)), zap.String("provider", name), zap.Error(err))
		if err := reg.SetDefault(purpose, domain.ProviderStub); err != nil {
			return nil, err
		}
	}
	for _, name := range reg.Names() {
		a, _ := reg.Get(name)
		log.Info("payment provider registered", zap.String("provider", name), zap.Any("capabilities", payment.Capabilities(a)))
	}
	return reg, nil
}
