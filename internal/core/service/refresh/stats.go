package refresh

import (
	"log/slog"
	"math"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

// MaxRatio is the max/min rate ratio over the last 30 days at or above
// which a series is considered anomalous.
const MaxRatio = 1000

// DeriveStats computes per-pair quality and freshness statistics from a
// daily histo. It returns ok=false when the histo holds no closed bucket,
// in which case the record must be left untouched.
//
// The 30-day walk iterates UTC day-aligned buckets to stay stable across
// DST shifts.
func DeriveStats(histoDaily domain.Histo, now time.Time, minDays int) (domain.PairExchangeStats, bool) {
	var oldest time.Time
	for key := range histoDaily {
		if key == domain.HistoLatestKey {
			continue
		}
		t, err := domain.GranularityDaily.ParseBucket(key)
		if err != nil {
			continue
		}
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	if oldest.IsZero() {
		return domain.PairExchangeStats{}, false
	}

	oldestDayAgo := int(now.Sub(oldest).Hours() / 24)

	historyCount := 0
	minRate := math.Inf(1)
	maxRate := math.Inf(-1)
	if latest, ok := histoDaily[domain.HistoLatestKey]; ok {
		historyCount++
		minRate, maxRate = latest, latest
	}

	day := now.UTC().Truncate(24 * time.Hour)
	for i := 1; i <= 30; i++ {
		key := domain.GranularityDaily.FormatBucket(day.AddDate(0, 0, -i))
		rate, ok := histoDaily[key]
		if !ok || rate <= 0 {
			continue
		}
		historyCount++
		minRate = math.Min(minRate, rate)
		maxRate = math.Max(maxRate, rate)
	}

	ratio := maxRate / minRate
	invalidRatio := ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio)
	if !invalidRatio && ratio >= MaxRatio {
		slog.Warn("Extreme ratio found", "ratio", ratio, "min", minRate, "max", maxRate)
	}

	has30 := historyCount >= minDays && !invalidRatio && ratio < MaxRatio
	has1y := oldestDayAgo > 365

	return domain.PairExchangeStats{
		OldestDayAgo:            &oldestDayAgo,
		HasHistoryFor1Year:      &has1y,
		HasHistoryFor30LastDays: &has30,
	}, true
}
