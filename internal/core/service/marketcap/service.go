// Package marketcap maintains the daily cached ranking of crypto tickers
// by market capitalization.
package marketcap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/core/service/throttle"
)

// The throttle window is short: the daily gate against the store is
// inside the refresh itself.
const window = time.Minute

type Service struct {
	source port.MarketCapSource
	store  port.Store
	now    func() time.Time

	throttled *throttle.Action[[]string]
}

func NewService(source port.MarketCapSource, store port.Store) *Service {
	s := &Service{
		source: source,
		store:  store,
		now:    time.Now,
	}
	s.throttled = throttle.NewAction(window, s.fetchAndCacheCoins)
	return s
}

var _ port.MarketCapService = (*Service)(nil)

// DailyCoins returns today's ranking, fetching and storing it at most
// once per day.
func (s *Service) DailyCoins(ctx context.Context) ([]string, error) {
	return s.throttled.Do(ctx)
}

func (s *Service) fetchAndCacheCoins(ctx context.Context) ([]string, error) {
	day := domain.GranularityDaily.FormatBucket(s.now())

	cached, err := s.store.QueryMarketCapCoinsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("query market cap snapshot: %w", err)
	}
	if len(cached) > 0 {
		return cached, nil
	}

	coins, err := s.source.FetchCoins(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch market cap ranking: %w", err)
	}

	// Filter to known crypto tickers, preserving rank order.
	filtered := make([]string, 0, len(coins))
	for _, ticker := range coins {
		if domain.IsCryptoTicker(ticker) {
			filtered = append(filtered, ticker)
		}
	}

	if err := s.store.UpdateMarketCapCoins(ctx, day, filtered); err != nil {
		return nil, fmt.Errorf("store market cap snapshot: %w", err)
	}
	slog.Info("Market cap ranking refreshed", "day", day, "coins", len(filtered))
	return filtered, nil
}
