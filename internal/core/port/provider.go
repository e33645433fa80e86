package port

import (
	"context"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

// Unsubscribe releases a price subscription. It is safe to call more than
// once; the underlying transport closes exactly once.
type Unsubscribe func()

// Provider is the capability set a market-data source must satisfy.
type Provider interface {
	// Get the provider identifier (as selected by PROVIDER)
	Name() string

	// One-time readiness check, e.g. verify credentials. Fails fast.
	Init(ctx context.Context) error

	// Enumerate all spot pairs whose two tickers are supported by the
	// currency registry
	FetchAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error)

	// Fetch exchange metadata
	FetchExchanges(ctx context.Context) ([]domain.ExchangeInfo, error)

	// Fetch a histo series for one pair exchange. Point order is
	// implementation-defined; callers must sort. limit <= 0 means the
	// provider's default depth.
	FetchHistoSeries(ctx context.Context, pairExchangeID string, granularity domain.Granularity, limit int) ([]domain.OHLCV, error)

	// Open a cold streaming subscription of raw price updates, already
	// post-filtered to supported tickers. The channel closes on natural
	// completion. Reconnect policy is the caller's.
	SubscribePriceUpdates(ctx context.Context) (<-chan domain.PriceUpdate, Unsubscribe, error)
}

// MarketCapSource ranks crypto tickers by market capitalization.
type MarketCapSource interface {
	// Fetch tickers in rank order (unfiltered; the engine filters to the
	// registry)
	FetchCoins(ctx context.Context) ([]string, error)
}
