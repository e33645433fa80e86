// Package kaiko adapts Kaiko (reference-data-api.kaiko.io and the
// regional market APIs) to the provider contract. Streaming is available
// behind USE_KAIKO_WSS with a dedicated key.
package kaiko

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
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
	referenceBase = "https://reference-data-api.kaiko.io/v1"

	// Continuation-token pagination cap. Hitting it is logged, never
	// fatal.
	maxPages = 100
)

type Config struct {
	APIKey     string
	WSSKey     string
	Region     string
	APIVersion string
	UseWSS     bool
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

var _ port.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	if cfg.Region == "" {
		cfg.Region = "eu"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	client := httpx.New(60 * time.Second)
	client.Headers = map[string]string{"X-Api-Key": cfg.APIKey}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return "kaiko" }

func (p *Provider) marketBase() string {
	return fmt.Sprintf("https://%s.market-api.kaiko.io/%s", p.cfg.Region, p.cfg.APIVersion)
}

// Init verifies the key against the reference-data API.
func (p *Provider) Init(ctx context.Context) error {
	var out instrumentsResponse
	if err := p.client.GetJSON(ctx, referenceBase+"/exchanges", &out); err != nil {
		return domain.Configf("kaiko credentials rejected: %v", err)
	}
	return nil
}

type instrumentsResponse struct {
	Data []struct {
		ExchangeCode string `json:"exchange_code"`
		Class        string `json:"class"`
		BaseAsset    string `json:"base_asset"`
		QuoteAsset   string `json:"quote_asset"`
		Code         string `json:"code"`
		Name         string `json:"name"`
	} `json:"data"`
}

// FetchAvailablePairExchanges lists spot instruments. Kaiko asset codes
// are lowercase; tickers are upcased before the registry filter.
func (p *Provider) FetchAvailablePairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	var resp instrumentsResponse
	if err := p.client.GetJSON(ctx, referenceBase+"/instruments", &resp); err != nil {
		return nil, err
	}
	out := make([]domain.PairExchange, 0, len(resp.Data))
	for _, inst := range resp.Data {
		if inst.Class != "spot" {
			continue
		}
		from := strings.ToUpper(inst.BaseAsset)
		to := strings.ToUpper(inst.QuoteAsset)
		if !domain.IsTickerSupported(from) || !domain.IsTickerSupported(to) {
			continue
		}
		out = append(out, domain.NewPairExchange(inst.ExchangeCode, from, to))
	}
	return out, nil
}

func (p *Provider) FetchExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	var resp instrumentsResponse
	if err := p.client.GetJSON(ctx, referenceBase+"/exchanges", &resp); err != nil {
		return nil, err
	}
	out := make([]domain.ExchangeInfo, 0, len(resp.Data))
	for _, e := range resp.Data {
		out = append(out, domain.ExchangeInfo{ID: e.Code, Name: e.Name})
	}
	return out, nil
}

type ohlcvResponse struct {
	Data []struct {
		Timestamp int64  `json:"timestamp"`
		Open      string `json:"open"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Close     string `json:"close"`
		Volume    string `json:"volume"`
	} `json:"data"`
	NextURL string `json:"next_url"`
}

// FetchHistoSeries follows next_url continuation pages up to the cap.
func (p *Provider) FetchHistoSeries(ctx context.Context, pairExchangeID string, granularity domain.Granularity, limit int) ([]domain.OHLCV, error) {
	exchange, from, to, err := domain.ParsePairExchangeID(pairExchangeID)
	if err != nil {
		return nil, err
	}
	interval := "1d"
	if granularity == domain.GranularityHourly {
		interval = "1h"
	}
	if limit <= 0 {
		limit = 730
		if granularity == domain.GranularityHourly {
			limit = 168
		}
	}

	u := fmt.Sprintf("%s/data/trades.v1/exchanges/%s/spot/%s-%s/aggregations/ohlcv?interval=%s&page_size=%d",
		p.marketBase(), exchange, strings.ToLower(from), strings.ToLower(to), interval, min(limit, 1000))

	var out []domain.OHLCV
	for page := 0; u != "" && len(out) < limit; page++ {
		if page >= maxPages {
			slog.Warn("Kaiko pagination cap hit, returning partial history",
				"id", pairExchangeID, "pages", page, "points", len(out))
			break
		}
		var resp ohlcvResponse
		if err := p.client.GetJSON(ctx, u, &resp); err != nil {
			return nil, err
		}
		for _, pt := range resp.Data {
			point, err := parsePoint(pt.Timestamp, pt.Open, pt.High, pt.Low, pt.Close, pt.Volume)
			if err != nil {
				slog.Warn("Skipping unparseable Kaiko point", "id", pairExchangeID, "error", err)
				continue
			}
			out = append(out, point)
		}
		u = resp.NextURL
	}
	return out, nil
}

func parsePoint(ts int64, open, high, low, clos, volume string) (domain.OHLCV, error) {
	parse := func(s string) (float64, error) {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var point domain.OHLCV
	var err error
	point.Time = time.UnixMilli(ts).UTC()
	if point.Open, err = parse(open); err != nil {
		return point, err
	}
	if point.High, err = parse(high); err != nil {
		return point, err
	}
	if point.Low, err = parse(low); err != nil {
		return point, err
	}
	if point.Close, err = parse(clos); err != nil {
		return point, err
	}
	point.Volume, err = parse(volume)
	return point, err
}

type wsTradeMessage struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription struct {
			Exchange   string `json:"exchange"`
			Instrument string `json:"instrument"`
		} `json:"subscription"`
		Data []struct {
			Price string `json:"price"`
		} `json:"data"`
	} `json:"payload"`
}

// SubscribePriceUpdates streams spot trades when USE_KAIKO_WSS is set.
// Without it the subscription stays silent until unsubscribed: Kaiko
// exposes no free streaming tier, and the persisted view keeps serving.
func (p *Provider) SubscribePriceUpdates(ctx context.Context) (<-chan domain.PriceUpdate, port.Unsubscribe, error) {
	if !p.cfg.UseWSS {
		slog.Warn("Kaiko streaming disabled (USE_KAIKO_WSS unset); live rates will not sync")
		updates := make(chan domain.PriceUpdate)
		var once sync.Once
		return updates, func() { once.Do(func() { close(updates) }) }, nil
	}

	release := wsguard.Acquire()

	wsURL := fmt.Sprintf("wss://%s.market-ws.kaiko.io/v1/fws", p.cfg.Region)
	header := http.Header{"X-Api-Key": []string{p.cfg.WSSKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("kaiko websocket dial: %w", err)
	}

	subscribe := map[string]any{
		"command": "subscribe",
		"args": map[string]any{
			"subscriptions": map[string]string{
				"topic":   "trades",
				"pattern": "*:spot:*",
			},
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		release()
		return nil, nil, fmt.Errorf("kaiko websocket subscribe: %w", err)
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
			var msg wsTradeMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					slog.Warn("Kaiko websocket read ended", "error", err)
				}
				return
			}
			if msg.Event != "update" || len(msg.Payload.Data) == 0 {
				continue
			}
			id, ok := pairExchangeIDFromSubscription(msg.Payload.Subscription.Exchange, msg.Payload.Subscription.Instrument)
			if !ok {
				continue
			}
			// Within one message the last trade is the freshest.
			price, err := strconv.ParseFloat(msg.Payload.Data[len(msg.Payload.Data)-1].Price, 64)
			if err != nil || price <= 0 {
				continue
			}
			select {
			case updates <- domain.PriceUpdate{PairExchangeID: id, Price: price}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, port.Unsubscribe(closeOnce), nil
}

// pairExchangeIDFromSubscription maps (exchange, "btc-usd") to the
// canonical id.
func pairExchangeIDFromSubscription(exchange, instrument string) (string, bool) {
	parts := strings.SplitN(instrument, "-", 2)
	if exchange == "" || len(parts) != 2 {
		return "", false
	}
	from := strings.ToUpper(parts[0])
	to := strings.ToUpper(parts[1])
	if !domain.IsTickerSupported(from) || !domain.IsTickerSupported(to) {
		return "", false
	}
	return domain.BuildPairExchangeID(exchange, from, to), true
}
