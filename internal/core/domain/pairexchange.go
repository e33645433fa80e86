package domain

import (
	"fmt"
	"strings"
	"time"
)

// Granularity of a histo series. The enumeration is closed but additive:
// bucket keys of distinct granularities never collide.
type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityHourly Granularity = "hourly"
)

const (
	dailyKeyLayout  = "2006-01-02"
	hourlyKeyLayout = "2006-01-02T15"

	// HistoLatestKey is the reserved histo key for the currently open bucket.
	HistoLatestKey = "latest"
)

// ParseGranularity validates a textual granularity (as found in URLs).
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDaily:
		return GranularityDaily, nil
	case GranularityHourly:
		return GranularityHourly, nil
	}
	return "", fmt.Errorf("unsupported granularity: %q", s)
}

// Duration returns the fixed bucket width.
func (g Granularity) Duration() time.Duration {
	if g == GranularityHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// FormatBucket renders the canonical bucket key holding t, in UTC.
func (g Granularity) FormatBucket(t time.Time) string {
	if g == GranularityHourly {
		return t.UTC().Format(hourlyKeyLayout)
	}
	return t.UTC().Format(dailyKeyLayout)
}

// ParseBucket recovers the bucket start instant from a key produced by
// FormatBucket. Hourly keys carry no minutes; ":00" is appended so the
// instant is unambiguous.
func (g Granularity) ParseBucket(key string) (time.Time, error) {
	if g == GranularityHourly {
		return time.Parse(hourlyKeyLayout+":04", key+":00")
	}
	return time.Parse(dailyKeyLayout, key)
}

// Histo maps bucket keys to centSat rates. The reserved "latest" key holds
// the rate of the currently open bucket.
type Histo map[string]float64

// Pair is an exchange-agnostic (from, to) couple.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Key returns the from_to index key.
func (p Pair) Key() string {
	return p.From + "_" + p.To
}

// BuildPairExchangeID produces the canonical id <EXCHANGE>_<FROM>_<TO>.
func BuildPairExchangeID(exchange, from, to string) string {
	return exchange + "_" + from + "_" + to
}

// ParsePairExchangeID splits a canonical id back into its triple. Tickers
// never contain underscores, so from and to are the two last segments and
// everything before them is the exchange id.
func ParsePairExchangeID(id string) (exchange, from, to string, err error) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("invalid pair exchange id: %q", id)
	}
	from = parts[len(parts)-2]
	to = parts[len(parts)-1]
	exchange = strings.Join(parts[:len(parts)-2], "_")
	if exchange == "" || from == "" || to == "" {
		return "", "", "", fmt.Errorf("invalid pair exchange id: %q", id)
	}
	return exchange, from, to, nil
}

// PairExchange is the persisted record for one exchange's offering of a
// (from -> to) trading pair. Histo refresh, stats updates and live-rate
// writes touch disjoint field sets of this document, except latestDate,
// which both the daily histo refresh and live-rate writes set.
type PairExchange struct {
	ID       string `bson:"id" json:"id"`
	Exchange string `bson:"exchange" json:"exchange"`
	From     string `bson:"from" json:"from"`
	To       string `bson:"to" json:"to"`
	FromTo   string `bson:"from_to" json:"from_to"`

	HistoDaily  Histo `bson:"histo_daily" json:"histo_daily"`
	HistoHourly Histo `bson:"histo_hourly" json:"histo_hourly"`

	Latest     float64    `bson:"latest" json:"latest"`
	LatestDate *time.Time `bson:"latestDate" json:"latestDate"`

	YesterdayVolume         float64 `bson:"yesterdayVolume" json:"yesterdayVolume"`
	OldestDayAgo            int     `bson:"oldestDayAgo" json:"oldestDayAgo"`
	HasHistoryFor1Year      bool    `bson:"hasHistoryFor1Year" json:"hasHistoryFor1Year"`
	HasHistoryFor30LastDays bool    `bson:"hasHistoryFor30LastDays" json:"hasHistoryFor30LastDays"`

	HistoryLoadedAtDaily  *string `bson:"historyLoadedAt_daily" json:"historyLoadedAt_daily"`
	HistoryLoadedAtHourly *string `bson:"historyLoadedAt_hourly" json:"historyLoadedAt_hourly"`
}

// NewPairExchange builds the default record inserted on first sight of a
// pair. History for the last 30 days is assumed optimistically until the
// first stats derivation corrects it.
func NewPairExchange(exchange, from, to string) PairExchange {
	return PairExchange{
		ID:                      BuildPairExchangeID(exchange, from, to),
		Exchange:                exchange,
		From:                    from,
		To:                      to,
		FromTo:                  from + "_" + to,
		HistoDaily:              Histo{},
		HistoHourly:             Histo{},
		Latest:                  0,
		LatestDate:              nil,
		HasHistoryFor30LastDays: true,
		HasHistoryFor1Year:      false,
	}
}

// HistoFor returns the stored histo of the given granularity.
func (p *PairExchange) HistoFor(g Granularity) Histo {
	if g == GranularityHourly {
		return p.HistoHourly
	}
	return p.HistoDaily
}

// HistoryLoadedAt returns the bucket key at which the granularity was last
// fully refreshed, or nil if never.
func (p *PairExchange) HistoryLoadedAt(g Granularity) *string {
	if g == GranularityHourly {
		return p.HistoryLoadedAtHourly
	}
	return p.HistoryLoadedAtDaily
}

// PairExchangeStats is a partial merge of derived statistic fields. Nil
// fields are left untouched by the store.
type PairExchangeStats struct {
	YesterdayVolume         *float64   `bson:"yesterdayVolume,omitempty"`
	OldestDayAgo            *int       `bson:"oldestDayAgo,omitempty"`
	HasHistoryFor1Year      *bool      `bson:"hasHistoryFor1Year,omitempty"`
	HasHistoryFor30LastDays *bool      `bson:"hasHistoryFor30LastDays,omitempty"`
	HistoryLoadedAtDaily    *string    `bson:"historyLoadedAt_daily,omitempty"`
	HistoryLoadedAtHourly   *string    `bson:"historyLoadedAt_hourly,omitempty"`
	LatestDate              *time.Time `bson:"latestDate,omitempty"`
}

// OHLCV is a raw series point as produced by providers. Close is in raw
// units; normalization happens in the engine.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceUpdate is one streaming price event. The price is raw until the
// live pipeline normalizes it, after which Price is a centSat rate.
type PriceUpdate struct {
	PairExchangeID string  `json:"pairExchangeId" bson:"pairExchangeId"`
	Price          float64 `json:"price" bson:"price"`
}

// ExchangeInfo is the persisted exchange metadata.
type ExchangeInfo struct {
	ID      string `bson:"id" json:"id"`
	Name    string `bson:"name" json:"name"`
	Website string `bson:"website,omitempty" json:"website,omitempty"`
}

// RequestPair is one pair of a getHisto request.
type RequestPair struct {
	From     string
	To       string
	Exchange string
	After    string
	At       []string
}

// HistoResponse nests PairData under to -> from -> exchange. PairData is a
// histo with the "latest" key set from the record's live rate.
type HistoResponse map[string]map[string]map[string]Histo
