// Package cryptocompare adapts CryptoCompare (min-api.cryptocompare.com,
// streamer.cryptocompare.com) to the provider contract. An API key is
// optional.
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gre/ledger-api-countervalue/internal/adapters/providers/wsguard"
	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/httpx"
)

const (
	restBase   = "https://min-api.cryptocompare.com"
	streamBase = "wss://streamer.cryptocompare.com/v2"

	// The streamer rejects oversized subscription lists. The first pairs of
	// the provider's own listing are kept; that listing is built by map
	// iteration, so which pairs are kept is not defined.
	maxSubscriptions = 300
)

type Config struct {
	APIKey string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	rest   string
}

var _ port.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, client: httpx.New(30 * time.Second), rest: restBase}
}

func (p *Provider) Name() string { return "cryptocompare" }

// Init probes the REST endpoint; no credentials are required.
func (p *Provider) Init(ctx context.Context) error {
	var out struct {
		Response string `json:"Response"`
	}
	if err := p.client.GetJSON(ctx, p.rest+"/data/v4/all/exchanges?topTier=true", &out); err != nil {
		return domain.Configf("cryptocompare unreachable: %v", err)
	}
	return nil
}

type allExchangesResponse struct {
	Response string `json:"Response"`
	Data     struct {
		Exchanges map[string]struct {
			IsActive bool `json:"isActive"`
			Pairs    map[string]struct {
				Tsyms map[string]json.RawMessage `json:"tsyms"`
			} `json:"pairs"`
		} `json:"exchanges"`
	} `json:"Data"`
}

func (p *Provider) FetchAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	var resp allExchangesResponse
	if err := p.client.GetJSON(ctx, p.rest+"/data/v4/all/exchanges", &resp); err != nil {
		return nil, err
	}
	var out []domain.PairExchange
	for exchange, entry := range resp.Data.Exchanges {
		if !entry.IsActive {
			continue
		}
		for from, pair := range entry.Pairs {
			if !domain.IsTickerSupported(from) {
				continue
			}
			for to := range pair.Tsyms {
				if !domain.IsTickerSupported(to) {
					continue
				}
				out = append(out, domain.NewPairExchange(exchange, from, to))
			}
		}
	}
	return out, nil
}

type exchangesGeneralResponse struct {
	Data map[string]struct {
		Name         string `json:"Name"`
		InternalName string `json:"InternalName"`
		URL          string `json:"Url"`
	} `json:"Data"`
}

func (p *Provider) FetchExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	var resp exchangesGeneralResponse
	if err := p.client.GetJSON(ctx, p.rest+"/data/exchanges/general", &resp); err != nil {
		return nil, err
	}
	out := make([]domain.ExchangeInfo, 0, len(resp.Data))
	for _, e := range resp.Data {
		id := e.InternalName
		if id == "" {
			id = e.Name
		}
		out = append(out, domain.ExchangeInfo{ID: id, Name: e.Name, Website: e.URL})
	}
	return out, nil
}

type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time       int64   `json:"time"`
			Open       float64 `json:"open"`
			High       float64 `json:"high"`
			Low        float64 `json:"low"`
			Close      float64 `json:"close"`
			VolumeFrom float64 `json:"volumefrom"`
		} `json:"Data"`
	} `json:"Data"`
}

func (p *Provider) FetchHistoSeries(ctx context.Context, pairExchangeID string, granularity domain.Granularity, limit int) ([]domain.OHLCV, error) {
	exchange, from, to, err := domain.ParsePairExchangeID(pairExchangeID)
	if err != nil {
		return nil, err
	}
	endpoint := "/data/v2/histoday"
	if granularity == domain.GranularityHourly {
		endpoint = "/data/v2/histohour"
	}
	if limit <= 0 {
		limit = 730
		if granularity == domain.GranularityHourly {
			limit = 168
		}
	}

	u := fmt.Sprintf("%s%s?fsym=%s&tsym=%s&e=%s&limit=%d",
		p.rest, endpoint, url.QueryEscape(from), url.QueryEscape(to), url.QueryEscape(exchange), limit)
	var resp histoResponse
	if err := p.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Response != "Success" {
		return nil, fmt.Errorf("cryptocompare histo %s: %s", pairExchangeID, resp.Message)
	}

	out := make([]domain.OHLCV, 0, len(resp.Data.Data))
	for _, pt := range resp.Data.Data {
		out = append(out, domain.OHLCV{
			Time:   time.Unix(pt.Time, 0).UTC(),
			Open:   pt.Open,
			High:   pt.High,
			Low:    pt.Low,
			Close:  pt.Close,
			Volume: pt.VolumeFrom,
		})
	}
	return out, nil
}

type streamMessage struct {
	Type    string  `json:"TYPE"`
	Market  string  `json:"M"`
	FromSym string  `json:"FSYM"`
	ToSym   string  `json:"TSYM"`
	Price   float64 `json:"P"`
}

// SubscribePriceUpdates subscribes the streamer to trade channels of the
// available pairs (capped) and emits raw price updates.
func (p *Provider) SubscribePriceUpdates(ctx context.Context) (<-chan domain.PriceUpdate, port.Unsubscribe, error) {
	pairs, err := p.FetchAvailablePairExchanges(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptocompare subscription pair set: %w", err)
	}
	subs := make([]string, 0, maxSubscriptions)
	for _, pair := range pairs {
		if len(subs) == maxSubscriptions {
			slog.Warn("CryptoCompare subscription list truncated",
				"available", len(pairs), "subscribed", maxSubscriptions)
			break
		}
		subs = append(subs, fmt.Sprintf("0~%s~%s~%s", pair.Exchange, pair.From, pair.To))
	}

	release := wsguard.Acquire()

	streamURL := streamBase
	if p.cfg.APIKey != "" {
		streamURL += "?api_key=" + url.QueryEscape(p.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, http.Header{})
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("cryptocompare websocket dial: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{"action": "SubAdd", "subs": subs}); err != nil {
		conn.Close()
		release()
		return nil, nil, fmt.Errorf("cryptocompare websocket subscribe: %w", err)
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
			var msg streamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					slog.Warn("CryptoCompare websocket read ended", "error", err)
				}
				return
			}
			// TYPE 0 is a trade; everything else (heartbeats, sub acks,
			// errors) is ignored.
			if msg.Type != "0" || msg.Price <= 0 {
				continue
			}
			if !domain.IsTickerSupported(msg.FromSym) || !domain.IsTickerSupported(msg.ToSym) {
				continue
			}
			id := domain.BuildPairExchangeID(msg.Market, msg.FromSym, msg.ToSym)
			select {
			case updates <- domain.PriceUpdate{PairExchangeID: id, Price: msg.Price}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, port.Unsubscribe(closeOnce), nil
}
