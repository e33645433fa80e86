package port

import (
	"context"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

// RefreshService exposes the throttled fetch-and-cache operations.
type RefreshService interface {
	// Fetch and cache available pair exchanges (1h window)
	RefreshAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error)

	// Fetch and cache all exchanges (1h window)
	RefreshExchanges(ctx context.Context) ([]domain.ExchangeInfo, error)

	// Fetch and cache the histo series of one (id, granularity) (15min
	// window per key)
	RefreshHisto(ctx context.Context, pairExchangeID string, granularity domain.Granularity) (domain.Histo, error)
}

// MarketCapService serves the daily market-cap ranking.
type MarketCapService interface {
	DailyCoins(ctx context.Context) ([]string, error)
}

// RatesService is the pure-read query facade used by the HTTP layer.
type RatesService interface {
	GetHisto(ctx context.Context, pairs []domain.RequestPair, granularity domain.Granularity) (domain.HistoResponse, error)
	GetExchanges(ctx context.Context, from, to string) ([]domain.ExchangeInfo, error)
	GetTickers(ctx context.Context) []string
}

// HealthService reports store and staleness health.
type HealthService interface {
	// Fails when the store is unreachable or empty
	Status(ctx context.Context) error

	// Per-service statuses; the bool reports whether all are OK
	Detail(ctx context.Context) ([]domain.ServiceStatus, bool, error)
}
