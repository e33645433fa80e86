package port

import (
	"context"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

// Store is the persistent operation contract the engine relies on. The
// semantics below are the design contract, not a schema.
type Store interface {
	// Insert-if-absent per id; never overwrite existing derived data
	InsertPairExchangeData(ctx context.Context, pairs []domain.PairExchange) error

	// Atomic per-id set of latest and latestDate=now; refreshes
	// meta.lastLiveRatesSync. Updates carry centSat rates.
	UpdateLiveRates(ctx context.Context, updates []domain.PriceUpdate) error

	// Replace that granularity's histo wholesale
	UpdateHisto(ctx context.Context, id string, granularity domain.Granularity, histo domain.Histo) error

	// Partial merge of named statistic fields
	UpdatePairExchangeStats(ctx context.Context, id string, stats domain.PairExchangeStats) error

	// Upsert exchanges by id
	UpdateExchanges(ctx context.Context, exchanges []domain.ExchangeInfo) error

	// Upsert the ranking by day; refreshes meta.lastMarketCapSync
	UpdateMarketCapCoins(ctx context.Context, day string, coins []string) error

	// Records matching any of the pairs, sorted by
	// (hasHistoryFor1Year DESC, yesterdayVolume DESC). filterWithHistory
	// restricts to records with hasHistoryFor30LastDays=true.
	QueryPairExchangesByPairs(ctx context.Context, pairs []domain.Pair, filterWithHistory bool) ([]domain.PairExchange, error)

	// Single record or nil
	QueryPairExchangeByID(ctx context.Context, id string) (*domain.PairExchange, error)

	// All ids (used by the batch stats job)
	QueryPairExchangeIDs(ctx context.Context) ([]string, error)

	// All records sorted by latestDate descending, never-synced last
	// (used by the prefetch scheduler)
	QueryAllPairExchanges(ctx context.Context) ([]domain.PairExchange, error)

	QueryExchanges(ctx context.Context) ([]domain.ExchangeInfo, error)

	QueryMarketCapCoinsForDay(ctx context.Context, day string) ([]string, error)

	// Fails if the pair-exchange collection is empty
	StatusDB(ctx context.Context) error

	// Meta with zero-instant defaults if unset
	GetMeta(ctx context.Context) (domain.Meta, error)

	Close(ctx context.Context) error
}
