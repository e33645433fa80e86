// Package providers selects the market-data provider adapter from the
// configuration.
package providers

import (
	"github.com/gre/ledger-api-countervalue/internal/adapters/providers/coinapi"
	"github.com/gre/ledger-api-countervalue/internal/adapters/providers/cryptocompare"
	"github.com/gre/ledger-api-countervalue/internal/adapters/providers/kaiko"
	"github.com/gre/ledger-api-countervalue/internal/config"
	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

// New builds the provider selected by PROVIDER.
func New(cfg *config.Config) (port.Provider, error) {
	switch cfg.Provider {
	case config.ProviderCoinAPI:
		return coinapi.New(coinapi.Config{APIKey: cfg.CoinAPIKey}), nil
	case config.ProviderCryptoCompare:
		return cryptocompare.New(cryptocompare.Config{}), nil
	case config.ProviderKaiko:
		return kaiko.New(kaiko.Config{
			APIKey:     cfg.KaikoKey,
			WSSKey:     cfg.KaikoKeyWSS,
			Region:     cfg.KaikoRegion,
			APIVersion: cfg.KaikoAPIVersion,
			UseWSS:     cfg.UseKaikoWSS,
		}), nil
	}
	return nil, domain.Configf("unknown PROVIDER: %q", cfg.Provider)
}
