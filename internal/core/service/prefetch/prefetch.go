// Package prefetch warms the histo cache in the background by pacing a
// refresh of every known pair exchange over the histo throttle window.
package prefetch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/core/service/refresh"
)

const period = 4 * time.Hour

type Job struct {
	store   port.Store
	refresh port.RefreshService
}

func NewJob(store port.Store, refreshService port.RefreshService) *Job {
	return &Job{store: store, refresh: refreshService}
}

// Start runs one pass immediately, then every 4h, until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			slog.Error("Prefetch pass failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("Prefetch job stopped")
			return
		}
	}
}

// RunOnce walks every pair exchange, recently-live pairs first, refreshing
// its daily then hourly series. Pacing spreads the walk evenly over the
// histo throttle window.
func (j *Job) RunOnce(ctx context.Context) error {
	records, err := j.store.QueryAllPairExchanges(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		slog.Info("Prefetch: no pair exchanges to warm")
		return nil
	}

	sortByLiveActivity(records)

	pace := refresh.HistoWindow / time.Duration(len(records))
	slog.Info("Prefetch pass starting", "pairs", len(records), "pace", pace)

	for _, record := range records {
		if _, err := j.refresh.RefreshHisto(ctx, record.ID, domain.GranularityDaily); err != nil {
			slog.Warn("Prefetch daily refresh failed", "id", record.ID, "error", err)
		}
		if _, err := j.refresh.RefreshHisto(ctx, record.ID, domain.GranularityHourly); err != nil {
			slog.Warn("Prefetch hourly refresh failed", "id", record.ID, "error", err)
		}
		select {
		case <-time.After(pace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	slog.Info("Prefetch pass complete", "pairs", len(records))
	return nil
}

// sortByLiveActivity orders pairs with recent live activity first;
// never-synced pairs go last.
func sortByLiveActivity(records []domain.PairExchange) {
	sort.SliceStable(records, func(i, k int) bool {
		a, b := records[i].LatestDate, records[k].LatestDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
