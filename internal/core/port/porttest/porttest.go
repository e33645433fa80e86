// Package porttest provides in-memory fakes of the provider and store
// contracts for service tests.
package porttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

// Provider is a configurable fake. Unset hooks return empty results.
type Provider struct {
	InitFn               func(ctx context.Context) error
	PairExchangesFn      func(ctx context.Context) ([]domain.PairExchange, error)
	ExchangesFn          func(ctx context.Context) ([]domain.ExchangeInfo, error)
	HistoSeriesFn        func(ctx context.Context, id string, g domain.Granularity, limit int) ([]domain.OHLCV, error)
	SubscribeFn          func(ctx context.Context) (<-chan domain.PriceUpdate, port.Unsubscribe, error)
	HistoSeriesCallCount int

	mu sync.Mutex
}

var _ port.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "fake" }

func (p *Provider) Init(ctx context.Context) error {
	if p.InitFn != nil {
		return p.InitFn(ctx)
	}
	return nil
}

func (p *Provider) FetchAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	if p.PairExchangesFn != nil {
		return p.PairExchangesFn(ctx)
	}
	return nil, nil
}

func (p *Provider) FetchExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	if p.ExchangesFn != nil {
		return p.ExchangesFn(ctx)
	}
	return nil, nil
}

func (p *Provider) FetchHistoSeries(ctx context.Context, id string, g domain.Granularity, limit int) ([]domain.OHLCV, error) {
	p.mu.Lock()
	p.HistoSeriesCallCount++
	p.mu.Unlock()
	if p.HistoSeriesFn != nil {
		return p.HistoSeriesFn(ctx, id, g, limit)
	}
	return nil, nil
}

func (p *Provider) SubscribePriceUpdates(ctx context.Context) (<-chan domain.PriceUpdate, port.Unsubscribe, error) {
	if p.SubscribeFn != nil {
		return p.SubscribeFn(ctx)
	}
	updates := make(chan domain.PriceUpdate)
	close(updates)
	return updates, func() {}, nil
}

// Store is an in-memory store honoring the contract semantics the
// services rely on: insert-if-absent, partial stat merges, candidate
// sort order.
type Store struct {
	mu sync.Mutex

	Records   map[string]*domain.PairExchange
	Exchanges []domain.ExchangeInfo
	Snapshots map[string][]string
	Meta      domain.Meta

	LiveRatesCalls [][]domain.PriceUpdate
	Now            func() time.Time
}

var _ port.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		Records:   map[string]*domain.PairExchange{},
		Snapshots: map[string][]string{},
		Now:       time.Now,
	}
}

// Add seeds a record.
func (s *Store) Add(record domain.PairExchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := record
	s.Records[record.ID] = &copied
}

func (s *Store) InsertPairExchangeData(ctx context.Context, pairs []domain.PairExchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range pairs {
		if _, exists := s.Records[pair.ID]; !exists {
			copied := pair
			s.Records[pair.ID] = &copied
		}
	}
	return nil
}

func (s *Store) UpdateLiveRates(ctx context.Context, updates []domain.PriceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for _, update := range updates {
		if record, ok := s.Records[update.PairExchangeID]; ok {
			record.Latest = update.Price
			latestDate := now
			record.LatestDate = &latestDate
		}
	}
	s.Meta.LastLiveRatesSync = now
	s.LiveRatesCalls = append(s.LiveRatesCalls, updates)
	return nil
}

func (s *Store) UpdateHisto(ctx context.Context, id string, g domain.Granularity, histo domain.Histo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.Records[id]
	if !ok {
		return nil
	}
	if g == domain.GranularityHourly {
		record.HistoHourly = histo
	} else {
		record.HistoDaily = histo
	}
	return nil
}

func (s *Store) UpdatePairExchangeStats(ctx context.Context, id string, stats domain.PairExchangeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.Records[id]
	if !ok {
		return nil
	}
	if stats.YesterdayVolume != nil {
		record.YesterdayVolume = *stats.YesterdayVolume
	}
	if stats.OldestDayAgo != nil {
		record.OldestDayAgo = *stats.OldestDayAgo
	}
	if stats.HasHistoryFor1Year != nil {
		record.HasHistoryFor1Year = *stats.HasHistoryFor1Year
	}
	if stats.HasHistoryFor30LastDays != nil {
		record.HasHistoryFor30LastDays = *stats.HasHistoryFor30LastDays
	}
	if stats.HistoryLoadedAtDaily != nil {
		record.HistoryLoadedAtDaily = stats.HistoryLoadedAtDaily
	}
	if stats.HistoryLoadedAtHourly != nil {
		record.HistoryLoadedAtHourly = stats.HistoryLoadedAtHourly
	}
	if stats.LatestDate != nil {
		record.LatestDate = stats.LatestDate
	}
	return nil
}

func (s *Store) UpdateExchanges(ctx context.Context, exchanges []domain.ExchangeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Exchanges = exchanges
	return nil
}

func (s *Store) UpdateMarketCapCoins(ctx context.Context, day string, coins []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots[day] = coins
	s.Meta.LastMarketCapSync = s.Now()
	return nil
}

func (s *Store) QueryPairExchangesByPairs(ctx context.Context, pairs []domain.Pair, filterWithHistory bool) ([]domain.PairExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]bool{}
	for _, pair := range pairs {
		wanted[pair.Key()] = true
	}
	var out []domain.PairExchange
	for _, record := range s.Records {
		if !wanted[record.FromTo] {
			continue
		}
		if filterWithHistory && !record.HasHistoryFor30LastDays {
			continue
		}
		out = append(out, *record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HasHistoryFor1Year != out[j].HasHistoryFor1Year {
			return out[i].HasHistoryFor1Year
		}
		return out[i].YesterdayVolume > out[j].YesterdayVolume
	})
	return out, nil
}

func (s *Store) QueryPairExchangeByID(ctx context.Context, id string) (*domain.PairExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.Records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *Store) QueryPairExchangeIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Records))
	for id := range s.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) QueryAllPairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PairExchange, 0, len(s.Records))
	for _, record := range s.Records {
		out = append(out, *record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LatestDate, out[j].LatestDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out, nil
}

func (s *Store) QueryExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exchanges, nil
}

func (s *Store) QueryMarketCapCoinsForDay(ctx context.Context, day string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Snapshots[day], nil
}

func (s *Store) StatusDB(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Records) == 0 {
		return errors.New("pairExchanges collection is empty")
	}
	return nil
}

func (s *Store) GetMeta(ctx context.Context) (domain.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Meta, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }
