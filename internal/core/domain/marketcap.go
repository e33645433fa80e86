package domain

import "time"

// MarketCapSnapshot is the daily ranking of crypto tickers by market cap.
type MarketCapSnapshot struct {
	Day   string   `bson:"day" json:"day"`
	Coins []string `bson:"coins" json:"coins"`
}

// Meta is the singleton document tracking engine-wide sync instants. Zero
// instants mean the corresponding sync never happened.
type Meta struct {
	LastLiveRatesSync time.Time `bson:"lastLiveRatesSync" json:"lastLiveRatesSync"`
	LastMarketCapSync time.Time `bson:"lastMarketCapSync" json:"lastMarketCapSync"`
}
