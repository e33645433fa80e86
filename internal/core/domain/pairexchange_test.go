package domain

import (
	"testing"
	"time"
)

func TestPairExchangeID_RoundTrip(t *testing.T) {
	cases := []struct{ exchange, from, to string }{
		{"KRAKEN", "BTC", "USD"},
		{"BINANCE", "ETH", "USDT"},
		{"GATE_IO", "DOGE", "EUR"}, // exchange ids may carry underscores
	}
	for _, c := range cases {
		id := BuildPairExchangeID(c.exchange, c.from, c.to)
		exchange, from, to, err := ParsePairExchangeID(id)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		if exchange != c.exchange || from != c.from || to != c.to {
			t.Fatalf("%s: got (%s, %s, %s)", id, exchange, from, to)
		}
	}
}

func TestParsePairExchangeID_Invalid(t *testing.T) {
	for _, id := range []string{"", "BTC", "BTC_USD", "_BTC_USD"} {
		if _, _, _, err := ParsePairExchangeID(id); err == nil {
			t.Fatalf("%q: want error", id)
		}
	}
}

func TestBucketKey_RoundTrip(t *testing.T) {
	instant := time.Date(2023, 4, 7, 9, 0, 0, 0, time.UTC)

	dailyKey := GranularityDaily.FormatBucket(instant)
	if dailyKey != "2023-04-07" {
		t.Fatalf("daily key: %s", dailyKey)
	}
	hourlyKey := GranularityHourly.FormatBucket(instant)
	if hourlyKey != "2023-04-07T09" {
		t.Fatalf("hourly key: %s", hourlyKey)
	}

	for _, g := range []Granularity{GranularityDaily, GranularityHourly} {
		key := g.FormatBucket(instant)
		parsed, err := g.ParseBucket(key)
		if err != nil {
			t.Fatalf("%s: parse: %v", g, err)
		}
		if got := g.FormatBucket(parsed); got != key {
			t.Fatalf("%s: round trip %s -> %s", g, key, got)
		}
	}
}

func TestFormatBucket_UsesUTC(t *testing.T) {
	plus5 := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2023, 4, 7, 2, 0, 0, 0, plus5) // 2023-04-06T21 UTC
	if key := GranularityDaily.FormatBucket(local); key != "2023-04-06" {
		t.Fatalf("daily key: %s", key)
	}
	if key := GranularityHourly.FormatBucket(local); key != "2023-04-06T21" {
		t.Fatalf("hourly key: %s", key)
	}
}

func TestParseGranularity(t *testing.T) {
	if _, err := ParseGranularity("weekly"); err == nil {
		t.Fatal("want error for unsupported granularity")
	}
	g, err := ParseGranularity("hourly")
	if err != nil || g != GranularityHourly {
		t.Fatalf("got %v, %v", g, err)
	}
}

func TestNewPairExchange_Defaults(t *testing.T) {
	record := NewPairExchange("KRAKEN", "BTC", "USD")
	if record.ID != "KRAKEN_BTC_USD" || record.FromTo != "BTC_USD" {
		t.Fatalf("identity: %+v", record)
	}
	if record.Latest != 0 || record.LatestDate != nil {
		t.Fatalf("live defaults: %+v", record)
	}
	if !record.HasHistoryFor30LastDays {
		t.Fatal("hasHistoryFor30LastDays must start optimistic")
	}
	if record.HasHistoryFor1Year {
		t.Fatal("hasHistoryFor1Year must start false")
	}
	if record.HistoryLoadedAtDaily != nil || record.HistoryLoadedAtHourly != nil {
		t.Fatal("history must start unloaded")
	}
}
