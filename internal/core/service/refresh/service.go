// Package refresh orchestrates the throttled fetch-and-cache operations
// keeping the persisted view bounded in staleness: available pair
// exchanges, exchange metadata, and per-pair histo series.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/core/service/throttle"
)

const (
	pairExchangesWindow = time.Hour
	exchangesWindow     = time.Hour

	// HistoWindow is the per-(id, granularity) throttle window. The
	// prefetch scheduler paces one full cycle over it.
	HistoWindow = 15 * time.Minute
)

type Service struct {
	provider port.Provider
	store    port.Store
	minDays  int
	now      func() time.Time

	pairExchanges *throttle.Action[[]domain.PairExchange]
	exchanges     *throttle.Action[[]domain.ExchangeInfo]
	histo         *throttle.Keyed[domain.Histo]
}

// NewService wires the refresh engine over a provider and a store.
// minDays is the minimal day count for an exchange to be considered (see
// MINIMAL_DAYS_TO_CONSIDER_EXCHANGE).
func NewService(provider port.Provider, store port.Store, minDays int) *Service {
	s := &Service{
		provider: provider,
		store:    store,
		minDays:  minDays,
		now:      time.Now,
	}
	s.pairExchanges = throttle.NewAction(pairExchangesWindow, s.fetchAndCachePairExchanges)
	s.exchanges = throttle.NewAction(exchangesWindow, s.fetchAndCacheExchanges)
	s.histo = throttle.NewKeyed(HistoWindow, s.fetchAndCacheHisto)
	return s
}

var _ port.RefreshService = (*Service)(nil)

// RefreshAvailablePairExchanges fetches and caches the full spot pair
// set, at most once per hour.
func (s *Service) RefreshAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	return s.pairExchanges.Do(ctx)
}

// RefreshExchanges fetches and caches exchange metadata, at most once per
// hour.
func (s *Service) RefreshExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	return s.exchanges.Do(ctx)
}

// RefreshHisto fetches and caches the histo series of one pair exchange,
// at most once per 15 minutes per (id, granularity).
func (s *Service) RefreshHisto(ctx context.Context, pairExchangeID string, granularity domain.Granularity) (domain.Histo, error) {
	return s.histo.Do(ctx, histoKey(pairExchangeID, granularity))
}

func histoKey(id string, g domain.Granularity) string {
	return id + "|" + string(g)
}

func parseHistoKey(key string) (string, domain.Granularity, error) {
	i := strings.LastIndex(key, "|")
	if i < 0 {
		return "", "", fmt.Errorf("invalid histo key: %q", key)
	}
	g, err := domain.ParseGranularity(key[i+1:])
	if err != nil {
		return "", "", err
	}
	return key[:i], g, nil
}

func (s *Service) fetchAndCachePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	pairs, err := s.provider.FetchAvailablePairExchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch available pair exchanges: %w", err)
	}
	if err := s.store.InsertPairExchangeData(ctx, pairs); err != nil {
		return nil, fmt.Errorf("insert pair exchanges: %w", err)
	}
	slog.Info("Available pair exchanges refreshed", "count", len(pairs), "provider", s.provider.Name())
	return pairs, nil
}

func (s *Service) fetchAndCacheExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	exchanges, err := s.provider.FetchExchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch exchanges: %w", err)
	}
	if err := s.store.UpdateExchanges(ctx, exchanges); err != nil {
		return nil, fmt.Errorf("update exchanges: %w", err)
	}
	slog.Info("Exchanges refreshed", "count", len(exchanges))
	return exchanges, nil
}

// fetchAndCacheHisto refreshes one (id, granularity) series. The fast
// path skips the provider while historyLoadedAt_g still equals the
// current bucket key; for hourly series this bounds refreshes to once per
// hour even within the throttle window.
func (s *Service) fetchAndCacheHisto(ctx context.Context, key string) (domain.Histo, error) {
	id, granularity, err := parseHistoKey(key)
	if err != nil {
		return nil, err
	}

	record, err := s.store.QueryPairExchangeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query pair exchange %s: %w", id, err)
	}

	now := s.now()
	currentBucket := granularity.FormatBucket(now)
	if record != nil {
		if loadedAt := record.HistoryLoadedAt(granularity); loadedAt != nil && *loadedAt == currentBucket {
			return record.HistoFor(granularity), nil
		}
	}

	points, err := s.provider.FetchHistoSeries(ctx, id, granularity, 0)
	if err != nil {
		slog.Error("Histo fetch failed, serving cached series", "id", id, "granularity", granularity, "error", err)
		if record != nil {
			return record.HistoFor(granularity), nil
		}
		return nil, fmt.Errorf("fetch histo series %s: %w", id, err)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Time.After(points[j].Time)
	})

	_, from, to, err := domain.ParsePairExchangeID(id)
	if err != nil {
		return nil, err
	}

	histo := make(domain.Histo, len(points)+1)
	openSince := now.Add(-granularity.Duration())
	for _, p := range points {
		rate, err := domain.ToCentSatRate(from, to, p.Close)
		if err != nil {
			slog.Warn("Skipping histo point with unknown ticker", "id", id, "error", err)
			continue
		}
		if p.Time.After(openSince) {
			// Points are sorted newest first: the first one in the open
			// window wins the "latest" key.
			if _, ok := histo[domain.HistoLatestKey]; !ok {
				histo[domain.HistoLatestKey] = rate
			}
		} else {
			histo[granularity.FormatBucket(p.Time)] = rate
		}
	}

	if err := s.store.UpdateHisto(ctx, id, granularity, histo); err != nil {
		return nil, fmt.Errorf("update histo %s: %w", id, err)
	}

	stats := domain.PairExchangeStats{}
	switch granularity {
	case domain.GranularityDaily:
		stats.HistoryLoadedAtDaily = &currentBucket
		latestDate := now
		stats.LatestDate = &latestDate
		volume := yesterdayVolume(points, now)
		stats.YesterdayVolume = &volume
		if derived, ok := DeriveStats(histo, now, s.minDays); ok {
			stats.OldestDayAgo = derived.OldestDayAgo
			stats.HasHistoryFor1Year = derived.HasHistoryFor1Year
			stats.HasHistoryFor30LastDays = derived.HasHistoryFor30LastDays
		}
	case domain.GranularityHourly:
		stats.HistoryLoadedAtHourly = &currentBucket
	}
	if err := s.store.UpdatePairExchangeStats(ctx, id, stats); err != nil {
		return nil, fmt.Errorf("update stats %s: %w", id, err)
	}

	return histo, nil
}

// yesterdayVolume picks the volume of the day bucket immediately
// preceding today: the second point of the series sorted by time
// descending, if it is less than two days old.
func yesterdayVolume(pointsDesc []domain.OHLCV, now time.Time) float64 {
	if len(pointsDesc) < 2 {
		return 0
	}
	p := pointsDesc[1]
	if p.Time.After(now.Add(-48 * time.Hour)) {
		return p.Volume
	}
	return 0
}
