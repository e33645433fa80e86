package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port/porttest"
)

type fakeRefresh struct {
	histos     map[string]domain.Histo
	histoErr   error
	pairsErr   error
	exchanges  []domain.ExchangeInfo
	exchErr    error
	histoCalls []string
}

func (f *fakeRefresh) RefreshAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	return nil, f.pairsErr
}

func (f *fakeRefresh) RefreshExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	return f.exchanges, f.exchErr
}

func (f *fakeRefresh) RefreshHisto(ctx context.Context, id string, g domain.Granularity) (domain.Histo, error) {
	f.histoCalls = append(f.histoCalls, id)
	if f.histoErr != nil {
		return nil, f.histoErr
	}
	return f.histos[id], nil
}

type fakeMarketCap struct {
	coins []string
	err   error
}

func (f *fakeMarketCap) DailyCoins(ctx context.Context) ([]string, error) {
	return f.coins, f.err
}

func seedRecord(store *porttest.Store, exchange string, mutate func(*domain.PairExchange)) {
	record := domain.NewPairExchange(exchange, "BTC", "USD")
	if mutate != nil {
		mutate(&record)
	}
	store.Add(record)
}

func TestGetHisto_PicksTopRankedCandidate(t *testing.T) {
	store := porttest.NewStore()
	// X: deep history, modest volume. Y: huge volume, shallow history.
	seedRecord(store, "X", func(r *domain.PairExchange) {
		r.HasHistoryFor1Year = true
		r.YesterdayVolume = 10
		r.Latest = 0.5
	})
	seedRecord(store, "Y", func(r *domain.PairExchange) {
		r.HasHistoryFor1Year = false
		r.YesterdayVolume = 1000
		r.Latest = 0.6
	})

	refresh := &fakeRefresh{histos: map[string]domain.Histo{
		"X_BTC_USD": {"2026-03-09": 0.4},
	}}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD"}}, domain.GranularityDaily)
	require.NoError(t, err)

	require.Contains(t, response["USD"]["BTC"], "X")
	require.NotContains(t, response["USD"]["BTC"], "Y")
	data := response["USD"]["BTC"]["X"]
	require.Equal(t, 0.4, data["2026-03-09"])
	require.Equal(t, 0.5, data[domain.HistoLatestKey])
}

func TestGetHisto_ExplicitExchange(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "X", func(r *domain.PairExchange) { r.YesterdayVolume = 10 })
	seedRecord(store, "Y", nil)

	refresh := &fakeRefresh{histos: map[string]domain.Histo{}}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD", Exchange: "Y"}}, domain.GranularityDaily)
	require.NoError(t, err)
	require.Contains(t, response["USD"]["BTC"], "Y")
}

func TestGetHisto_SkipsPairsWithoutHistory(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "X", func(r *domain.PairExchange) {
		r.HasHistoryFor30LastDays = false
	})

	service := NewService(store, &fakeRefresh{}, &fakeMarketCap{}, nil)
	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD"}}, domain.GranularityDaily)
	require.NoError(t, err)
	require.Empty(t, response)
}

func TestGetHisto_BlacklistedExchangeIsInvisible(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "ShadyEx", func(r *domain.PairExchange) { r.YesterdayVolume = 50 })
	seedRecord(store, "X", nil)

	service := NewService(store, &fakeRefresh{}, &fakeMarketCap{}, map[string]bool{"shadyex": true})
	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD"}}, domain.GranularityDaily)
	require.NoError(t, err)
	require.NotContains(t, response["USD"]["BTC"], "ShadyEx")
	require.Contains(t, response["USD"]["BTC"], "X")
}

func TestGetHisto_AfterFiltersKeys(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "X", func(r *domain.PairExchange) { r.Latest = 9 })
	refresh := &fakeRefresh{histos: map[string]domain.Histo{
		"X_BTC_USD": {
			"2026-03-05":           1,
			"2026-03-08":           2,
			"2026-03-09":           3,
			domain.HistoLatestKey: 4,
		},
	}}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD", After: "2026-03-05"}}, domain.GranularityDaily)
	require.NoError(t, err)

	data := response["USD"]["BTC"]["X"]
	require.NotContains(t, data, "2026-03-05")
	require.Equal(t, 2.0, data["2026-03-08"])
	require.Equal(t, 3.0, data["2026-03-09"])
	// latest always comes from the record, not the filtered histo.
	require.Equal(t, 9.0, data[domain.HistoLatestKey])
}

func TestGetHisto_AtSelectsListedKeysOnly(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "X", nil)
	refresh := &fakeRefresh{histos: map[string]domain.Histo{
		"X_BTC_USD": {"2026-03-08": 2, "2026-03-09": 3},
	}}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD", At: []string{"2026-03-08", "2026-01-01"}}},
		domain.GranularityDaily)
	require.NoError(t, err)

	data := response["USD"]["BTC"]["X"]
	require.Equal(t, 2.0, data["2026-03-08"])
	require.NotContains(t, data, "2026-03-09")
	require.NotContains(t, data, "2026-01-01")
}

func TestGetHisto_RefreshFailureServesPersistedHisto(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "X", func(r *domain.PairExchange) {
		r.HistoDaily = domain.Histo{"2026-03-01": 7}
	})
	refresh := &fakeRefresh{
		pairsErr: errors.New("provider down"),
		histoErr: errors.New("provider down"),
	}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	response, err := service.GetHisto(context.Background(),
		[]domain.RequestPair{{From: "BTC", To: "USD"}}, domain.GranularityDaily)
	require.NoError(t, err)
	require.Equal(t, 7.0, response["USD"]["BTC"]["X"]["2026-03-01"])
}

func TestGetExchanges_MapsAndSynthesizesMetadata(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "Kraken", func(r *domain.PairExchange) { r.YesterdayVolume = 2 })
	seedRecord(store, "Obscure", nil)
	seedRecord(store, "NoHistory", func(r *domain.PairExchange) {
		r.HasHistoryFor30LastDays = false
		r.YesterdayVolume = 99
	})

	refresh := &fakeRefresh{exchanges: []domain.ExchangeInfo{
		{ID: "Kraken", Name: "Kraken Exchange", Website: "https://kraken.com"},
	}}
	service := NewService(store, refresh, &fakeMarketCap{}, nil)

	exchanges, err := service.GetExchanges(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	require.Equal(t, "Kraken Exchange", exchanges[0].Name)
	require.Equal(t, "https://kraken.com", exchanges[0].Website)
	// Unknown exchange metadata is synthesized from the id.
	require.Equal(t, domain.ExchangeInfo{ID: "Obscure", Name: "Obscure"}, exchanges[1])
}

func TestGetExchanges_BlacklistApplies(t *testing.T) {
	store := porttest.NewStore()
	seedRecord(store, "ShadyEx", nil)

	service := NewService(store, &fakeRefresh{}, &fakeMarketCap{}, map[string]bool{"shadyex": true})
	exchanges, err := service.GetExchanges(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.Empty(t, exchanges)
}

func TestGetTickers_RankedFirstThenRegistry(t *testing.T) {
	service := NewService(porttest.NewStore(), &fakeRefresh{}, &fakeMarketCap{coins: []string{"ETH", "BTC"}}, nil)

	tickers := service.GetTickers(context.Background())
	require.Equal(t, "ETH", tickers[0])
	require.Equal(t, "BTC", tickers[1])
	require.Contains(t, tickers, "DOGE")

	seen := map[string]int{}
	for _, ticker := range tickers {
		seen[ticker]++
		require.Equal(t, 1, seen[ticker], "no duplicates")
	}
}

func TestGetTickers_FallsBackToRegistryOrder(t *testing.T) {
	service := NewService(porttest.NewStore(), &fakeRefresh{}, &fakeMarketCap{err: errors.New("no key")}, nil)
	tickers := service.GetTickers(context.Background())
	require.Equal(t, domain.CryptoTickers(), tickers)
}

func TestQueryPairExchangesByPairs_SortingPrefersOneYearHistory(t *testing.T) {
	// Regression companion for the store sort contract: the in-memory
	// fake applies the same (hasHistoryFor1Year, yesterdayVolume) order
	// the mongo adapter queries with.
	store := porttest.NewStore()
	now := time.Now()
	seedRecord(store, "A", func(r *domain.PairExchange) {
		r.YesterdayVolume = 1
		r.HasHistoryFor1Year = true
		r.LatestDate = &now
	})
	seedRecord(store, "B", func(r *domain.PairExchange) { r.YesterdayVolume = 100 })

	records, err := store.QueryPairExchangesByPairs(context.Background(),
		[]domain.Pair{{From: "BTC", To: "USD"}}, false)
	require.NoError(t, err)
	require.Equal(t, "A", records[0].Exchange)
}
