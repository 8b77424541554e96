package service

import (
	"context"
	"strings"

	"marketplace/internal/domain"
	"marketplace/pkg/payment"

	"go.uber.org/zap"
)

const defaultProviderKey = "payment.default."

// SettingStore is a persistent key/value store.
type SettingStore interface {
	Set(ctx context.Context, key, value string) error
	WithPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

// ProviderSettings keeps admin overrides of the default provider per purpose
// and applies them to the registry.
type ProviderSettings struct {
	settings  SettingStore
	providers *payment.Registry
	log       *zap.Logger
}

func NewProviderSettings(settings SettingStore, providers *payment.Registry, log *zap.Logger) *ProviderSettings {
	return &ProviderSettings{settings: settings, providers: providers, log: log}
}

// Apply loads stored overrides. One that no longer fits the registry (the
// provider lost its credentials) is skipped with a warning.
func (p *ProviderSettings) Apply(ctx context.Context) error {
	stored, err := p.settings.WithPrefix(ctx, defaultProviderKey)
	if err != nil {
		return err
	}
	for key, name := range stored {
		purpose := payment.Purpose(strings.TrimPrefix(key, defaultProviderKey))
		if err := p.providers.SetDefault(purpose, name); err != nil {
			p.log.Warn("stored default provider ignored", zap.String("purpose", string(purpose)), zap.String("provider", name), zap.Error(err))
			continue
		}
		p.log.Info("default provider override", zap.String("purpose", string(purpose)), zap.String("provider", name))
	}
	return nil
}

// SetDefault switches the provider serving purpose and persists the choice.
func (p *ProviderSettings) SetDefault(ctx context.Context, purpose payment.Purpose, name string) error {
	switch purpose {
	case payment.PurposeDeposit, payment.PurposeWithdrawal, payment.PurposePayout:
	default:
		return &domain.ValidationError{Field: "purpose", Reason: "must be deposit, withdrawal or payout"}
	}
	if err := p.providers.SetDefault(purpose, name); err != nil {
		return err
	}
	return p.settings.Set(ctx, defaultProviderKey+string(purpose), name)
}

// Defaults reports the provider currently serving each purpose.
func (p *ProviderSettings) Defaults() map[payment.Purpose]string {
	out := make(map[payment.Purpose]string, 3)
	for _, purpose := range []payment.Purpose{payment.PurposeDeposit, payment.PurposeWithdrawal, payment.PurposePayout} {
		if a, err := p.providers.Default(purpose); err == nil {
			out[purpose] = a.Name()
		}
	}
	return out
}
