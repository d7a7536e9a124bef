package paymentintent

import (
	"strings"

	"github.com/rentease/rentledger/internal/config"
	"github.com/rentease/rentledger/internal/paymentintent/adapters"
	"github.com/rentease/rentledger/internal/paymentintent/adapters/mpesa"
	"github.com/rentease/rentledger/internal/paymentintent/domain"
	"github.com/rentease/rentledger/internal/paymentintent/repository"
	"github.com/rentease/rentledger/internal/paymentintent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentintent",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			mpesa.NewFactory(),
		)
	}),
	fx.Provide(AdapterConfigs),
	fx.Provide(service.NewService),
)

// AdapterConfigs maps provider names to their credential bundles.
func AdapterConfigs(cfg config.Config) map[string]domain.AdapterConfig {
	configs := map[string]domain.AdapterConfig{}
	if cfg.Mpesa.ConsumerKey != "" {
		configs["mpesa"] = domain.AdapterConfig{Config: map[string]any{
			"base_url":        cfg.Mpesa.BaseURL,
			"consumer_key":    cfg.Mpesa.ConsumerKey,
			"consumer_secret": cfg.Mpesa.ConsumerSecret,
			"passkey":         cfg.Mpesa.Passkey,
			"callback_url":    strings.TrimRight(cfg.Mpesa.CallbackBaseURL, "/") + "/api/payments/callback/mpesa",
		}}
	}
	return configs
}
