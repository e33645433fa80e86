// Package marketcap adapts the CoinMarketCap listings API as the
// market-cap ranking source.
package marketcap

import (
	"context"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/httpx"
)

const listingsURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/listings/latest?limit=500&sort=market_cap"

type CoinMarketCap struct {
	apiKey string
	client *httpx.Client
}

var _ port.MarketCapSource = (*CoinMarketCap)(nil)

func NewCoinMarketCap(apiKey string) *CoinMarketCap {
	client := httpx.New(30 * time.Second)
	client.Headers = map[string]string{"X-CMC_PRO_API_KEY": apiKey}
	return &CoinMarketCap{apiKey: apiKey, client: client}
}

type listingsResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
	} `json:"data"`
}

// FetchCoins returns ticker symbols in market-cap rank order.
func (c *CoinMarketCap) FetchCoins(ctx context.Context) ([]string, error) {
	if c.apiKey == "" {
		return nil, domain.Configf("CMC_API_KEY is not set")
	}
	var resp listingsResponse
	if err := c.client.GetJSON(ctx, listingsURL, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Data))
	for _, coin := range resp.Data {
		out = append(out, coin.Symbol)
	}
	return out, nil
}
