// Package coinapi adapts CoinAPI (rest.coinapi.io, ws.coinapi.io) to the
// provider contract.
package coinapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gre/ledger-api-countervalue/internal/adapters/providers/wsguard"
	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/httpx"
)

const (
	restBase = "https://rest.coinapi.io/v1"
	wsURL    = "wss://ws.coinapi.io/v1/"

	// Safety cap on the backward pagination of OHLCV history.
	maxPages = 100
	pageSize = 500
)

type Config struct {
	APIKey string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

var _ port.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	client := httpx.New(60 * time.Second)
	client.Headers = map[string]string{"X-CoinAPI-Key": cfg.APIKey}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return "coinapi" }

// Init verifies the credentials with a cheap authenticated call.
func (p *Provider) Init(ctx context.Context) error {
	var out []apiExchange
	if err := p.client.GetJSON(ctx, restBase+"/exchanges", &out); err != nil {
		return domain.Configf("coinapi credentials rejected: %v", err)
	}
	return nil
}

type apiSymbol struct {
	SymbolID   string `json:"symbol_id"`
	ExchangeID string `json:"exchange_id"`
	SymbolType string `json:"symbol_type"`
	AssetBase  string `json:"asset_id_base"`
	AssetQuote string `json:"asset_id_quote"`
}

func (p *Provider) FetchAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	var symbols []apiSymbol
	if err := p.client.GetJSON(ctx, restBase+"/symbols", &symbols); err != nil {
		return nil, err
	}
	out := make([]domain.PairExchange, 0, len(symbols))
	for _, s := range symbols {
		if s.SymbolType != "SPOT" {
			continue
		}
		if !domain.IsTickerSupported(s.AssetBase) || !domain.IsTickerSupported(s.AssetQuote) {
			continue
		}
		out = append(out, domain.NewPairExchange(s.ExchangeID, s.AssetBase, s.AssetQuote))
	}
	return out, nil
}

type apiExchange struct {
	ExchangeID string `json:"exchange_id"`
	Name       string `json:"name"`
	Website    string `json:"website"`
}

func (p *Provider) FetchExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	var exchanges []apiExchange
	if err := p.client.GetJSON(ctx, restBase+"/exchanges", &exchanges); err != nil {
		return nil, err
	}
	out := make([]domain.ExchangeInfo, 0, len(exchanges))
	for _, e := range exchanges {
		out = append(out, domain.ExchangeInfo{ID: e.ExchangeID, Name: e.Name, Website: e.Website})
	}
	return out, nil
}

type apiOHLCV struct {
	TimePeriodStart time.Time `json:"time_period_start"`
	PriceOpen       float64   `json:"price_open"`
	PriceHigh       float64   `json:"price_high"`
	PriceLow        float64   `json:"price_low"`
	PriceClose      float64   `json:"price_close"`
	VolumeTraded    float64   `json:"volume_traded"`
}

// FetchHistoSeries pages backwards through OHLCV history until limit
// points are collected or the cap is hit.
func (p *Provider) FetchHistoSeries(ctx context.Context, pairExchangeID string, granularity domain.Granularity, limit int) ([]domain.OHLCV, error) {
	exchange, from, to, err := domain.ParsePairExchangeID(pairExchangeID)
	if err != nil {
		return nil, err
	}
	period := "1DAY"
	if granularity == domain.GranularityHourly {
		period = "1HRS"
	}
	if limit <= 0 {
		limit = 730
		if granularity == domain.GranularityHourly {
			limit = 168
		}
	}
	symbolID := fmt.Sprintf("%s_SPOT_%s_%s", exchange, from, to)

	var out []domain.OHLCV
	timeEnd := ""
	for page := 0; len(out) < limit; page++ {
		if page >= maxPages {
			slog.Warn("CoinAPI pagination cap hit, returning partial history",
				"symbol", symbolID, "pages", page, "points", len(out))
			break
		}
		u := fmt.Sprintf("%s/ohlcv/%s/history?period_id=%s&limit=%d",
			restBase, url.PathEscape(symbolID), period, pageSize)
		if timeEnd != "" {
			u += "&time_end=" + url.QueryEscape(timeEnd)
		}
		var points []apiOHLCV
		if err := p.client.GetJSON(ctx, u, &points); err != nil {
			return nil, err
		}
		for _, pt := range points {
			out = append(out, domain.OHLCV{
				Time:   pt.TimePeriodStart,
				Open:   pt.PriceOpen,
				High:   pt.PriceHigh,
				Low:    pt.PriceLow,
				Close:  pt.PriceClose,
				Volume: pt.VolumeTraded,
			})
		}
		if len(points) < pageSize {
			break
		}
		timeEnd = points[len(points)-1].TimePeriodStart.UTC().Format(time.RFC3339)
	}
	return out, nil
}

type wsHello struct {
	Type          string   `json:"type"`
	APIKey        string   `json:"apikey"`
	Heartbeat     bool     `json:"heartbeat"`
	SubscribeData []string `json:"subscribe_data_type"`
}

type wsTrade struct {
	Type     string  `json:"type"`
	SymbolID string  `json:"symbol_id"`
	Price    float64 `json:"price"`
}

// SubscribePriceUpdates streams trades over the CoinAPI websocket,
// post-filtered to supported tickers.
func (p *Provider) SubscribePriceUpdates(ctx context.Context) (<-chan domain.PriceUpdate, port.Unsubscribe, error) {
	release := wsguard.Acquire()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("coinapi websocket dial: %w", err)
	}

	hello := wsHello{Type: "hello", APIKey: p.cfg.APIKey, SubscribeData: []string{"trade"}}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		release()
		return nil, nil, fmt.Errorf("coinapi websocket hello: %w", err)
	}

	updates := make(chan domain.PriceUpdate, 256)
	var once sync.Once
	closeOnce := func() {
		once.Do(func() {
			conn.Close()
			release()
		})
	}

	go func() {
		defer close(updates)
		defer closeOnce()
		for {
			var msg wsTrade
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					slog.Warn("CoinAPI websocket read ended", "error", err)
				}
				return
			}
			if msg.Type != "trade" || msg.Price <= 0 {
				continue
			}
			id, ok := pairExchangeIDFromSymbol(msg.SymbolID)
			if !ok {
				continue
			}
			select {
			case updates <- domain.PriceUpdate{PairExchangeID: id, Price: msg.Price}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, port.Unsubscribe(closeOnce), nil
}

// pairExchangeIDFromSymbol maps EXCHANGE_SPOT_BASE_QUOTE to the canonical
// id, rejecting non-spot symbols and unknown tickers.
func pairExchangeIDFromSymbol(symbolID string) (string, bool) {
	parts := strings.Split(symbolID, "_")
	if len(parts) < 4 {
		return "", false
	}
	quote := parts[len(parts)-1]
	base := parts[len(parts)-2]
	if parts[len(parts)-3] != "SPOT" {
		return "", false
	}
	exchange := strings.Join(parts[:len(parts)-3], "_")
	if !domain.IsTickerSupported(base) || !domain.IsTickerSupported(quote) {
		return "", false
	}
	return domain.BuildPairExchangeID(exchange, base, quote), true
}
