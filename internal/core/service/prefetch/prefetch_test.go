package prefetch

import (
	"testing"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

func TestSortByLiveActivity(t *testing.T) {
	now := time.Now()
	older := now.Add(-time.Hour)

	a := domain.NewPairExchange("A", "BTC", "USD")
	a.LatestDate = &older
	b := domain.NewPairExchange("B", "ETH", "USD")
	b.LatestDate = &now
	c := domain.NewPairExchange("C", "LTC", "USD") // never synced

	records := []domain.PairExchange{c, a, b}
	sortByLiveActivity(records)

	if records[0].Exchange != "B" || records[1].Exchange != "A" || records[2].Exchange != "C" {
		t.Fatalf("order: %s %s %s", records[0].Exchange, records[1].Exchange, records[2].Exchange)
	}
}
