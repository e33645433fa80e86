// Package rates is the pure-read query facade used by the HTTP layer.
// Refreshes are best-effort at the edges: on any refresh failure the
// last-persisted view is served, staleness being preferable to a 5xx.
package rates

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

type Service struct {
	store     port.Store
	refresh   port.RefreshService
	marketcap port.MarketCapService
	blacklist map[string]bool // lowercase exchange ids
}

// NewService builds the read facade. blacklist holds the lowercased
// exchange ids of BLACKLIST_EXCHANGES.
func NewService(store port.Store, refreshService port.RefreshService, marketcapService port.MarketCapService, blacklist map[string]bool) *Service {
	if blacklist == nil {
		blacklist = map[string]bool{}
	}
	return &Service{
		store:     store,
		refresh:   refreshService,
		marketcap: marketcapService,
		blacklist: blacklist,
	}
}

var _ port.RatesService = (*Service)(nil)

// GetHisto resolves each requested pair to its best candidate exchange
// and returns the requested slice of its histo, nested under
// to -> from -> exchange.
func (s *Service) GetHisto(ctx context.Context, pairs []domain.RequestPair, granularity domain.Granularity) (domain.HistoResponse, error) {
	if _, err := s.refresh.RefreshAvailablePairExchanges(ctx); err != nil {
		slog.Error("Available pair exchanges refresh failed, serving persisted view", "error", err)
	}

	distinct := make(map[domain.Pair]bool, len(pairs))
	query := make([]domain.Pair, 0, len(pairs))
	for _, p := range pairs {
		pair := domain.Pair{From: p.From, To: p.To}
		if !distinct[pair] {
			distinct[pair] = true
			query = append(query, pair)
		}
	}

	records, err := s.store.QueryPairExchangesByPairs(ctx, query, false)
	if err != nil {
		return nil, err
	}

	// Records come back sorted (hasHistoryFor1Year DESC, yesterdayVolume
	// DESC); grouping preserves that order per pair.
	byPair := make(map[string][]domain.PairExchange)
	for _, record := range records {
		if s.blacklist[strings.ToLower(record.Exchange)] {
			continue
		}
		byPair[record.FromTo] = append(byPair[record.FromTo], record)
	}

	response := domain.HistoResponse{}
	for _, request := range pairs {
		record := pickCandidate(byPair[request.From+"_"+request.To], request.Exchange)
		if record == nil {
			continue
		}

		histo, err := s.refresh.RefreshHisto(ctx, record.ID, granularity)
		if err != nil {
			slog.Error("Histo refresh failed, serving persisted view", "id", record.ID, "error", err)
			histo = record.HistoFor(granularity)
		}

		data := filterKeys(histo, request)
		data[domain.HistoLatestKey] = record.Latest

		if response[request.To] == nil {
			response[request.To] = map[string]map[string]domain.Histo{}
		}
		if response[request.To][request.From] == nil {
			response[request.To][request.From] = map[string]domain.Histo{}
		}
		response[request.To][request.From][record.Exchange] = data
	}
	return response, nil
}

// pickCandidate selects among records with 30-day history: the requested
// exchange if any, else the top-ranked one.
func pickCandidate(records []domain.PairExchange, exchange string) *domain.PairExchange {
	for i := range records {
		if !records[i].HasHistoryFor30LastDays {
			continue
		}
		if exchange == "" || records[i].Exchange == exchange {
			return &records[i]
		}
	}
	return nil
}

// filterKeys applies the at/after selection. An explicit at list wins and
// may yield an empty result.
func filterKeys(histo domain.Histo, request domain.RequestPair) domain.Histo {
	out := make(domain.Histo, len(histo))
	if len(request.At) > 0 {
		for _, key := range request.At {
			if rate, ok := histo[key]; ok {
				out[key] = rate
			}
		}
		return out
	}
	for key, rate := range histo {
		if key == domain.HistoLatestKey {
			continue
		}
		if request.After == "" || key > request.After {
			out[key] = rate
		}
	}
	return out
}

// GetExchanges lists the exchanges able to serve a pair, richer metadata
// first-hand when known, synthesized from the id otherwise.
func (s *Service) GetExchanges(ctx context.Context, from, to string) ([]domain.ExchangeInfo, error) {
	exchanges, err := s.refresh.RefreshExchanges(ctx)
	if err != nil {
		slog.Error("Exchanges refresh failed, serving persisted view", "error", err)
		exchanges, err = s.store.QueryExchanges(ctx)
		if err != nil {
			return nil, err
		}
	}

	byID := make(map[string]domain.ExchangeInfo, len(exchanges))
	for _, e := range exchanges {
		byID[e.ID] = e
	}

	records, err := s.store.QueryPairExchangesByPairs(ctx, []domain.Pair{{From: from, To: to}}, true)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ExchangeInfo, 0, len(records))
	for _, record := range records {
		if s.blacklist[strings.ToLower(record.Exchange)] {
			continue
		}
		if info, ok := byID[record.Exchange]; ok {
			out = append(out, info)
		} else {
			out = append(out, domain.ExchangeInfo{ID: record.Exchange, Name: record.Exchange})
		}
	}
	return out, nil
}

// GetTickers returns all crypto tickers, market-cap ranked first,
// registry order for the remainder.
func (s *Service) GetTickers(ctx context.Context) []string {
	ranked, err := s.marketcap.DailyCoins(ctx)
	if err != nil {
		slog.Error("Market cap ranking unavailable, serving registry order", "error", err)
	}

	seen := make(map[string]bool, len(ranked))
	out := make([]string, 0, len(ranked))
	for _, ticker := range ranked {
		if !seen[ticker] {
			seen[ticker] = true
			out = append(out, ticker)
		}
	}
	for _, ticker := range domain.CryptoTickers() {
		if !seen[ticker] {
			seen[ticker] = true
			out = append(out, ticker)
		}
	}
	return out
}
